package main

import (
	"context"
	"log/slog"
	"time"

	"relay/server/internal/chatroom"
	"relay/server/internal/filestore"
	"relay/server/internal/invite"
	"relay/server/internal/mailbox"
	"relay/server/internal/otm"
	"relay/server/internal/ratelimit"
)

// runGaugeLogger periodically logs process-wide gauge counts: live entries
// held by every in-memory store, plus tracked rate-limit buckets. These are
// cheap snapshots of in-memory map sizes, not counters, so they are logged
// directly rather than routed through the totals sink.
func runGaugeLogger(
	ctx context.Context,
	rooms *chatroom.Registry,
	mail *mailbox.Queue,
	limiter *ratelimit.Limiter,
	otmStore *otm.Store,
	fileStore *filestore.Store,
	inviteStore *invite.Store,
	interval time.Duration,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			slog.Info("gauges",
				"rooms", rooms.RoomCount(),
				"burned_rooms", rooms.BurnedCount(),
				"mailboxes", mail.MailboxCount(),
				"rate_buckets", limiter.BucketCount(),
				"otm_entries", otmStore.Count(),
				"file_entries", fileStore.Count(),
				"invite_entries", inviteStore.Count(),
			)
		}
	}
}
