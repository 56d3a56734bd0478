package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notibridge/notibridge/internal/journal"
)

func TestEntryDetails(t *testing.T) {
	tests := []struct {
		name  string
		entry journal.Entry
		want  string
	}{
		{
			name:  "forwarded normal urgency",
			entry: journal.Entry{Kind: journal.KindForwarded, Summary: "Backup complete", Urgency: u8(UrgencyNormal)},
			want:  "Backup complete",
		},
		{
			name:  "forwarded critical urgency gets suffix",
			entry: journal.Entry{Kind: journal.KindForwarded, Summary: "Disk failing", Urgency: u8(UrgencyCritical)},
			want:  "Disk failing (critical)",
		},
		{
			name:  "forwarded low urgency gets suffix",
			entry: journal.Entry{Kind: journal.KindForwarded, Summary: "FYI", Urgency: u8(UrgencyLow)},
			want:  "FYI (low)",
		},
		{
			name:  "forwarded without urgency hint",
			entry: journal.Entry{Kind: journal.KindForwarded, Summary: "Plain"},
			want:  "Plain",
		},
		{
			name:  "rejected with error",
			entry: journal.Entry{Kind: journal.KindRejected, Summary: "spam", Error: "notification rate exceeded"},
			want:  "notification rate exceeded",
		},
		{
			name:  "rejected without error falls back to summary",
			entry: journal.Entry{Kind: journal.KindRejected, Summary: "spam"},
			want:  "spam",
		},
		{
			name:  "dismissed",
			entry: journal.Entry{Kind: journal.KindDismissed, GuestID: 5, Reason: "expired"},
			want:  "guest #5 (expired)",
		},
		{
			name:  "action",
			entry: journal.Entry{Kind: journal.KindAction, GuestID: 3, ActionKey: "default"},
			want:  `guest #3 key="default"`,
		},
		{
			name:  "replied",
			entry: journal.Entry{Kind: journal.KindReplied, GuestID: 9},
			want:  "guest #9",
		},
		{
			name:  "restart",
			entry: journal.Entry{Kind: journal.KindRestart},
			want:  "host daemon restarted",
		},
		{
			name:  "connect",
			entry: journal.Entry{Kind: journal.KindConnect, Peer: "workvm"},
			want:  "agent connected",
		},
		{
			name:  "disconnect",
			entry: journal.Entry{Kind: journal.KindDisconnect, Peer: "workvm"},
			want:  "agent disconnected",
		},
		{
			name:  "unknown kind",
			entry: journal.Entry{Kind: journal.Kind("mystery")},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EntryDetails(tt.entry))
		})
	}
}
