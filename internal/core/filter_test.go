package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notibridge/notibridge/internal/journal"
)

func u8(v uint8) *uint8 { return &v }

func TestFilter_Empty(t *testing.T) {
	result := Filter(nil, FilterOptions{})
	assert.Len(t, result, 0)
}

func TestFilter_NoFilters(t *testing.T) {
	entries := []journal.Entry{
		{ID: "1", Peer: "workvm"},
		{ID: "2", Peer: "personal"},
	}

	result := Filter(entries, FilterOptions{})
	assert.Len(t, result, 2)
}

func TestFilter_ByPeer(t *testing.T) {
	entries := []journal.Entry{
		{ID: "1", Peer: "workvm"},
		{ID: "2", Peer: "personal"},
		{ID: "3", Peer: "workvm"},
	}

	result := Filter(entries, FilterOptions{Peer: "workvm"})
	assert.Len(t, result, 2)
	for _, e := range result {
		assert.Equal(t, "workvm", e.Peer)
	}
}

func TestFilter_ByApp(t *testing.T) {
	entries := []journal.Entry{
		{ID: "1", AppName: "Firefox"},
		{ID: "2", AppName: "Mail"},
		{ID: "3", AppName: "Firefox"},
	}

	result := Filter(entries, FilterOptions{App: "Firefox"})
	assert.Len(t, result, 2)
}

func TestFilter_ByKind(t *testing.T) {
	entries := []journal.Entry{
		{ID: "1", Kind: journal.KindForwarded},
		{ID: "2", Kind: journal.KindRejected},
		{ID: "3", Kind: journal.KindForwarded},
	}

	result := Filter(entries, FilterOptions{Kind: journal.KindRejected})
	assert.Len(t, result, 1)
	assert.Equal(t, "2", result[0].ID)
}

func TestFilter_ByUrgency(t *testing.T) {
	entries := []journal.Entry{
		{ID: "1", Urgency: u8(UrgencyLow)},
		{ID: "2", Urgency: u8(UrgencyCritical)},
		{ID: "3", Urgency: nil},
		{ID: "4", Urgency: u8(UrgencyCritical)},
	}

	result := Filter(entries, FilterOptions{Urgency: u8(UrgencyCritical)})
	assert.Len(t, result, 2)
	for _, e := range result {
		require.NotNil(t, e.Urgency)
		assert.Equal(t, UrgencyCritical, *e.Urgency)
	}
}

func TestFilter_BySince(t *testing.T) {
	now := time.Now()
	entries := []journal.Entry{
		{ID: "1", Time: now.Add(-30 * time.Minute)},
		{ID: "2", Time: now.Add(-2 * time.Hour)},
		{ID: "3", Time: now.Add(-5 * time.Hour)},
	}

	result := Filter(entries, FilterOptions{Since: time.Hour})
	assert.Len(t, result, 1)
	assert.Equal(t, "1", result[0].ID)
}

func TestFilter_WithLimit(t *testing.T) {
	entries := []journal.Entry{
		{ID: "1"}, {ID: "2"}, {ID: "3"}, {ID: "4"}, {ID: "5"},
	}

	result := Filter(entries, FilterOptions{Limit: 3})
	assert.Len(t, result, 3)
}

func TestFilter_Combined(t *testing.T) {
	now := time.Now()
	entries := []journal.Entry{
		{ID: "1", Peer: "workvm", Kind: journal.KindForwarded, Time: now.Add(-30 * time.Minute)},
		{ID: "2", Peer: "workvm", Kind: journal.KindRejected, Time: now.Add(-30 * time.Minute)},
		{ID: "3", Peer: "personal", Kind: journal.KindForwarded, Time: now.Add(-30 * time.Minute)},
		{ID: "4", Peer: "workvm", Kind: journal.KindForwarded, Time: now.Add(-5 * time.Hour)},
	}

	result := Filter(entries, FilterOptions{
		Peer:  "workvm",
		Kind:  journal.KindForwarded,
		Since: time.Hour,
	})
	assert.Len(t, result, 1)
	assert.Equal(t, "1", result[0].ID)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		hasError bool
	}{
		{"0", 0, false},
		{"", 0, false},
		{"1h", time.Hour, false},
		{"30m", 30 * time.Minute, false},
		{"48h", 48 * time.Hour, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"1w", 7 * 24 * time.Hour, false},
		{"2w", 14 * 24 * time.Hour, false},
		{"invalid", 0, true},
		{"xd", 0, true},
		{"xw", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseDuration(tt.input)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func TestParseUrgency(t *testing.T) {
	tests := []struct {
		input    string
		expected uint8
		hasError bool
	}{
		{"low", UrgencyLow, false},
		{"LOW", UrgencyLow, false},
		{"0", UrgencyLow, false},
		{"normal", UrgencyNormal, false},
		{"1", UrgencyNormal, false},
		{"critical", UrgencyCritical, false},
		{"CRITICAL", UrgencyCritical, false},
		{"2", UrgencyCritical, false},
		{"invalid", 0, true},
		{"3", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseUrgency(tt.input)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func TestUrgencyLabel(t *testing.T) {
	assert.Equal(t, "", UrgencyLabel(nil))
	assert.Equal(t, "low", UrgencyLabel(u8(0)))
	assert.Equal(t, "normal", UrgencyLabel(u8(1)))
	assert.Equal(t, "critical", UrgencyLabel(u8(2)))
	assert.Equal(t, "9", UrgencyLabel(u8(9)))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("forwarded")
	require.NoError(t, err)
	assert.Equal(t, journal.KindForwarded, k)

	k, err = ParseKind(" Rejected ")
	require.NoError(t, err)
	assert.Equal(t, journal.KindRejected, k)

	_, err = ParseKind("bogus")
	assert.Error(t, err)
}

func TestIsFilterExpression(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected bool
	}{
		// Valid filter expressions
		{"peer_equal", "peer=workvm", true},
		{"peer_not_equal", "peer!=personal", true},
		{"app_alias", "app=thunderbird", true},
		{"summary_contains", "summary~meeting", true},
		{"summary_regex", "summary~=(?i)error", true},
		{"urgency_greater", "urgency>normal", true},
		{"urgency_less_eq", "urgency<=normal", true},
		{"kind", "kind=rejected", true},
		{"time", "time>1h", true},
		{"multiple", "peer=workvm,urgency=critical", true},

		// Not filter expressions (plain text search)
		{"plain_word", "meeting", false},
		{"plain_phrase", "important message", false},
		{"email_address", "user@example.com", false}, // @ is not a filter operator
		{"url", "https://example.com", false},
		{"unknown_field", "unknown=value", false},
		{"just_equals", "=value", false},
		{"number", "12345", false},
		{"empty", "", false},

		// Edge cases
		{"partial_field", "pee=workvm", false},          // "pee" is not a valid field
		{"case_insensitive_field", "PEER=workvm", true}, // fields are case-insensitive
		{"bad_urgency_value", "urgency=extreme", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsFilterExpression(tt.query)
			assert.Equal(t, tt.expected, result, "query: %q", tt.query)
		})
	}
}

func TestParseFilter_Conditions(t *testing.T) {
	expr, err := ParseFilter("vm=workvm, type!=forwarded ,urgency>=normal")
	require.NoError(t, err)
	require.Len(t, expr.Conditions, 3)

	assert.Equal(t, "peer", expr.Conditions[0].Field)
	assert.Equal(t, FilterOpEqual, expr.Conditions[0].Operator)
	assert.Equal(t, "workvm", expr.Conditions[0].Value)

	assert.Equal(t, "kind", expr.Conditions[1].Field)
	assert.Equal(t, FilterOpNotEqual, expr.Conditions[1].Operator)

	assert.Equal(t, "urgency", expr.Conditions[2].Field)
	assert.Equal(t, FilterOpGreaterEq, expr.Conditions[2].Operator)
}

func TestParseFilter_Errors(t *testing.T) {
	_, err := ParseFilter("bogus=1")
	assert.Error(t, err)

	_, err = ParseFilter("summary~=([unclosed")
	assert.Error(t, err)

	_, err = ParseFilter("no-operator-here")
	assert.Error(t, err)
}

func TestFilterExpr_Match(t *testing.T) {
	now := time.Now()

	entry := journal.Entry{
		ID:      "01J",
		Time:    now.Add(-10 * time.Minute),
		Kind:    journal.KindForwarded,
		Peer:    "workvm",
		AppName: "Mail",
		Summary: "New message from Alice",
		Urgency: u8(UrgencyCritical),
	}

	tests := []struct {
		expr    string
		matches bool
	}{
		{"peer=workvm", true},
		{"peer=personal", false},
		{"peer!=personal", true},
		{"app~mai", true},
		{"summary~alice", true},
		{"summary~=^New", true},
		{"summary~=^Old", false},
		{"kind=forwarded", true},
		{"kind!=forwarded", false},
		{"urgency=critical", true},
		{"urgency>normal", true},
		{"urgency<normal", false},
		{"time>1h", true},
		{"time<1h", false},
		{"peer=workvm,urgency>=normal", true},
		{"peer=workvm,urgency<normal", false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			expr, err := ParseFilter(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.matches, expr.Match(entry))
		})
	}
}

func TestFilterExpr_UrgencyAbsentNeverMatches(t *testing.T) {
	expr, err := ParseFilter("urgency<=critical")
	require.NoError(t, err)
	assert.False(t, expr.Match(journal.Entry{ID: "1"}))
}

func TestFilterWithExpr(t *testing.T) {
	entries := []journal.Entry{
		{ID: "1", Peer: "workvm", Kind: journal.KindForwarded},
		{ID: "2", Peer: "workvm", Kind: journal.KindRejected},
		{ID: "3", Peer: "personal", Kind: journal.KindRejected},
	}

	expr, err := ParseFilter("peer=workvm,kind=rejected")
	require.NoError(t, err)

	result := FilterWithExpr(entries, expr)
	require.Len(t, result, 1)
	assert.Equal(t, "2", result[0].ID)

	// Nil and empty expressions pass everything through
	assert.Len(t, FilterWithExpr(entries, nil), 3)
	empty, _ := ParseFilter("")
	assert.Len(t, FilterWithExpr(entries, empty), 3)
}
