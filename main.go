package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"relay/server/internal/chatroom"
	"relay/server/internal/filestore"
	"relay/server/internal/httpapi"
	"relay/server/internal/invite"
	"relay/server/internal/mailbox"
	"relay/server/internal/otm"
	"relay/server/internal/ratelimit"
	"relay/server/internal/totals"
	"relay/server/internal/wsapi"
)

func main() {
	if len(os.Args) > 1 {
		totalsDSN := os.Getenv("RELAY_TOTALS_DSN")
		if RunCLI(os.Args[1:], totalsDSN) {
			return
		}
	}

	addr := flag.String("addr", envOr("PORT", defaultAddr), "HTTP listen address or port")
	totalsDSN := flag.String("totals-dsn", envOr("RELAY_TOTALS_DSN", defaultTotalsDSN), "sqlite DSN for the totals sink (empty disables metrics)")
	flag.Parse()

	listenAddr := *addr
	if listenAddr != "" && listenAddr[0] != ':' {
		listenAddr = ":" + listenAddr
	}

	sink, err := totals.Open(*totalsDSN)
	if err != nil {
		slog.Error("open totals sink", "err", err)
		os.Exit(1)
	}
	defer sink.Close()

	limiter := ratelimit.New()
	otmStore := otm.New(func() { sink.IncrementTotal(totals.OtmCreated) })
	fileStore := filestore.New(func() { sink.IncrementTotal(totals.FilesCreated) })
	inviteStore := invite.New(func() { sink.IncrementTotal(totals.ChatInvitesCreated) })
	rooms := chatroom.New(func() { sink.IncrementTotal(totals.RoomsCreated) })

	sockets := wsapi.NewLiveSocketMap()
	mailQueue := mailbox.New(sockets, func() { sink.IncrementTotal(totals.ChatMessagesSent) })
	chatHandler := wsapi.NewChatHandler(mailQueue, sockets)

	roomHandler := wsapi.NewRoomHandler(rooms)
	wsHandler := wsapi.New(roomHandler, chatHandler)

	app := httpapi.New(httpapi.Deps{
		OTM:      otmStore,
		Files:    fileStore,
		Invites:  inviteStore,
		Mailbox:  mailQueue,
		Limiter:  limiter,
		Totals:   sink,
		Version:  Version,
		WSRoutes: wsHandler.Register,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	go otmStore.Run(ctx)
	go fileStore.Run(ctx)
	go inviteStore.Run(ctx)
	go mailQueue.Run(ctx)
	go limiter.Run(ctx)
	go runGaugeLogger(ctx, rooms, mailQueue, limiter, otmStore, fileStore, inviteStore, 30*time.Second)

	slog.Info("relay server starting", "addr", listenAddr, "version", Version)
	if err := app.Run(ctx, listenAddr); err != nil {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
