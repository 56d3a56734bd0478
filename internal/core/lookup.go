package core

import (
	"strings"

	"github.com/notibridge/notibridge/internal/journal"
)

// LookupByID finds an entry by its ULID.
// Returns nil if not found.
func LookupByID(entries []journal.Entry, id string) *journal.Entry {
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i]
		}
	}
	return nil
}

// LookupByIndex finds an entry by its index (1-based for user-friendliness).
// Returns nil if index is out of bounds.
func LookupByIndex(entries []journal.Entry, index int) *journal.Entry {
	idx := index - 1
	if idx < 0 || idx >= len(entries) {
		return nil
	}
	return &entries[idx]
}

// Search finds entries matching a search term in summary, app name, peer,
// action key, or error text. Case-insensitive substring match.
func Search(entries []journal.Entry, term string) []journal.Entry {
	if term == "" {
		return entries
	}

	term = strings.ToLower(term)
	var result []journal.Entry

	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Summary), term) ||
			strings.Contains(strings.ToLower(e.AppName), term) ||
			strings.Contains(strings.ToLower(e.Peer), term) ||
			strings.Contains(strings.ToLower(e.ActionKey), term) ||
			strings.Contains(strings.ToLower(e.Error), term) {
			result = append(result, e)
		}
	}

	return result
}

// UniquePeers returns a sorted list of unique peer names from entries.
func UniquePeers(entries []journal.Entry) []string {
	seen := make(map[string]bool)
	var peers []string

	for _, e := range entries {
		if e.Peer != "" && !seen[e.Peer] {
			seen[e.Peer] = true
			peers = append(peers, e.Peer)
		}
	}

	sortStrings(peers)
	return peers
}

// sortStrings sorts strings in place (simple insertion sort for small lists).
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && strings.ToLower(s[j]) < strings.ToLower(s[j-1]); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
