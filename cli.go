package main

import (
	"context"
	"fmt"
	"os"

	"relay/server/internal/totals"
)

// RunCLI handles subcommand execution. Returns true if a subcommand was handled.
func RunCLI(args []string, totalsDSN string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("relay server %s\n", Version)
		return true
	case "totals":
		return cliTotals(totalsDSN)
	default:
		return false
	}
}

func cliTotals(dsn string) bool {
	sink, err := totals.Open(dsn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening totals sink: %v\n", err)
		os.Exit(1)
	}
	defer sink.Close()

	t, err := sink.ReadTotals(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading totals: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("rooms_created:        %d\n", t.RoomsCreated)
	fmt.Printf("otm_created:          %d\n", t.OtmCreated)
	fmt.Printf("files_created:        %d\n", t.FilesCreated)
	fmt.Printf("chat_invites_created: %d\n", t.ChatInvitesCreated)
	fmt.Printf("chat_messages_sent:   %d\n", t.ChatMessagesSent)
	return true
}
