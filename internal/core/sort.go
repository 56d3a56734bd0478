package core

import (
	"sort"
	"strings"

	"github.com/notibridge/notibridge/internal/journal"
)

// SortField represents a field to sort by.
type SortField string

const (
	SortByTime    SortField = "time"
	SortByPeer    SortField = "peer"
	SortByApp     SortField = "app"
	SortByKind    SortField = "kind"
	SortByUrgency SortField = "urgency"
)

// SortOrder represents ascending or descending order.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SortOptions specifies sorting criteria.
type SortOptions struct {
	Field SortField // Field to sort by
	Order SortOrder // Sort order (asc/desc)
}

// DefaultSortOptions returns default sort options (newest first).
func DefaultSortOptions() SortOptions {
	return SortOptions{
		Field: SortByTime,
		Order: SortDesc,
	}
}

// Sort sorts entries in place based on the provided options.
func Sort(entries []journal.Entry, opts SortOptions) {
	if len(entries) == 0 {
		return
	}

	sort.SliceStable(entries, func(i, j int) bool {
		var less bool

		switch opts.Field {
		case SortByTime:
			less = entries[i].Time.Before(entries[j].Time)
		case SortByPeer:
			less = strings.ToLower(entries[i].Peer) < strings.ToLower(entries[j].Peer)
		case SortByApp:
			less = strings.ToLower(entries[i].AppName) < strings.ToLower(entries[j].AppName)
		case SortByKind:
			less = entries[i].Kind < entries[j].Kind
		case SortByUrgency:
			less = urgencyRank(entries[i].Urgency) < urgencyRank(entries[j].Urgency)
		default:
			less = entries[i].Time.Before(entries[j].Time)
		}

		if opts.Order == SortDesc {
			return !less
		}
		return less
	})
}

// urgencyRank orders urgency hints, with absent hints below all levels.
func urgencyRank(u *uint8) int {
	if u == nil {
		return -1
	}
	return int(*u)
}

// ParseSortField parses a sort field string.
func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "time", "timestamp", "t":
		return SortByTime, nil
	case "peer", "vm", "p":
		return SortByPeer, nil
	case "app", "appname", "a":
		return SortByApp, nil
	case "kind", "k":
		return SortByKind, nil
	case "urgency", "u":
		return SortByUrgency, nil
	default:
		return SortByTime, nil
	}
}

// ParseSortOrder parses a sort order string.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending", "a":
		return SortAsc, nil
	case "desc", "descending", "d":
		return SortDesc, nil
	default:
		return SortDesc, nil
	}
}
