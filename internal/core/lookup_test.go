package core

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/notibridge/notibridge/internal/journal"
)

func TestLookupByID(t *testing.T) {
	entries := []journal.Entry{
		{ID: "abc123", Peer: "workvm"},
		{ID: "def456", Peer: "personal"},
		{ID: "ghi789", Peer: "untrusted"},
	}

	t.Run("found", func(t *testing.T) {
		result := LookupByID(entries, "def456")
		assert.NotNil(t, result)
		assert.Equal(t, "personal", result.Peer)
	})

	t.Run("not found", func(t *testing.T) {
		result := LookupByID(entries, "notexist")
		assert.Nil(t, result)
	})

	t.Run("empty slice", func(t *testing.T) {
		result := LookupByID(nil, "abc123")
		assert.Nil(t, result)
	})
}

func TestLookupByIndex(t *testing.T) {
	entries := []journal.Entry{
		{ID: "1", Peer: "workvm"},
		{ID: "2", Peer: "personal"},
		{ID: "3", Peer: "untrusted"},
	}

	t.Run("valid index 1", func(t *testing.T) {
		result := LookupByIndex(entries, 1)
		assert.NotNil(t, result)
		assert.Equal(t, "workvm", result.Peer)
	})

	t.Run("valid index 3", func(t *testing.T) {
		result := LookupByIndex(entries, 3)
		assert.NotNil(t, result)
		assert.Equal(t, "untrusted", result.Peer)
	})

	t.Run("index 0 out of bounds", func(t *testing.T) {
		result := LookupByIndex(entries, 0)
		assert.Nil(t, result)
	})

	t.Run("negative index", func(t *testing.T) {
		result := LookupByIndex(entries, -1)
		assert.Nil(t, result)
	})

	t.Run("index past end", func(t *testing.T) {
		result := LookupByIndex(entries, 4)
		assert.Nil(t, result)
	})
}

func TestSearch(t *testing.T) {
	entries := []journal.Entry{
		{ID: "1", Summary: "Download complete", AppName: "Firefox", Peer: "workvm"},
		{ID: "2", Summary: "New message", AppName: "Mail", Peer: "personal"},
		{ID: "3", Kind: journal.KindAction, ActionKey: "open-download", Peer: "workvm"},
		{ID: "4", Kind: journal.KindRejected, Error: "rate limit exceeded", Peer: "workvm"},
	}

	t.Run("matches summary", func(t *testing.T) {
		result := Search(entries, "download")
		assert.Len(t, result, 2) // summary and action key both match
	})

	t.Run("matches app name", func(t *testing.T) {
		result := Search(entries, "mail")
		assert.Len(t, result, 1)
		assert.Equal(t, "2", result[0].ID)
	})

	t.Run("matches peer", func(t *testing.T) {
		result := Search(entries, "workvm")
		assert.Len(t, result, 3)
	})

	t.Run("matches error text", func(t *testing.T) {
		result := Search(entries, "rate limit")
		assert.Len(t, result, 1)
		assert.Equal(t, "4", result[0].ID)
	})

	t.Run("case insensitive", func(t *testing.T) {
		result := Search(entries, "FIREFOX")
		assert.Len(t, result, 1)
	})

	t.Run("empty term returns all", func(t *testing.T) {
		result := Search(entries, "")
		assert.Len(t, result, 4)
	})

	t.Run("no matches", func(t *testing.T) {
		result := Search(entries, "zzzzz")
		assert.Len(t, result, 0)
	})
}

func TestUniquePeers(t *testing.T) {
	entries := []journal.Entry{
		{ID: "1", Peer: "workvm"},
		{ID: "2", Peer: "Personal"},
		{ID: "3", Peer: "workvm"},
		{ID: "4", Peer: ""},
		{ID: "5", Peer: "anon"},
	}

	peers := UniquePeers(entries)
	assert.Equal(t, []string{"anon", "Personal", "workvm"}, peers)
}

func TestUniquePeers_Empty(t *testing.T) {
	assert.Empty(t, UniquePeers(nil))
}
