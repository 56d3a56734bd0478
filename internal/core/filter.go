// Package core provides filtering, sorting, lookup, and output
// rendering over journal entries.
package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/notibridge/notibridge/internal/journal"
)

// Urgency levels as carried in the urgency hint.
const (
	UrgencyLow      uint8 = 0
	UrgencyNormal   uint8 = 1
	UrgencyCritical uint8 = 2
)

// FilterOp represents a comparison operator.
type FilterOp string

const (
	FilterOpEqual     FilterOp = "="  // Exact match
	FilterOpNotEqual  FilterOp = "!=" // Not equal
	FilterOpContains  FilterOp = "~"  // Contains substring
	FilterOpRegex     FilterOp = "~=" // Regex match
	FilterOpGreater   FilterOp = ">"  // Greater than
	FilterOpLess      FilterOp = "<"  // Less than
	FilterOpGreaterEq FilterOp = ">=" // Greater than or equal
	FilterOpLessEq    FilterOp = "<=" // Less than or equal
)

// FilterCondition represents a single filter condition.
type FilterCondition struct {
	Field    string   // Field name: peer, app, summary, kind, urgency, time, error
	Operator FilterOp // Comparison operator
	Value    string   // Value to compare against

	// Cached parsed values
	regex      *regexp.Regexp // Compiled regex for ~= operator
	urgencyVal uint8          // Parsed urgency value
	cutoff     time.Time      // Parsed cutoff for time comparisons
	kindVal    journal.Kind   // Parsed kind value
}

// FilterExpr represents a compound filter expression.
// Multiple conditions are ANDed together.
type FilterExpr struct {
	Conditions []FilterCondition
}

// FilterOptions specifies criteria for filtering journal entries.
type FilterOptions struct {
	Since   time.Duration // Keep entries newer than now-since (0=all)
	Peer    string        // Exact match on peer name
	App     string        // Exact match on application name
	Kind    journal.Kind  // Keep entries of this kind (""=any)
	Urgency *uint8        // Filter by urgency level (nil=any)
	Limit   int           // Maximum results (0=unlimited)
}

// Filter filters entries based on the provided options.
func Filter(entries []journal.Entry, opts FilterOptions) []journal.Entry {
	now := time.Now()
	result := make([]journal.Entry, 0, len(entries))

	for _, e := range entries {
		if opts.Since > 0 && e.Time.Before(now.Add(-opts.Since)) {
			continue
		}
		if opts.Peer != "" && e.Peer != opts.Peer {
			continue
		}
		if opts.App != "" && e.AppName != opts.App {
			continue
		}
		if opts.Kind != "" && e.Kind != opts.Kind {
			continue
		}
		if opts.Urgency != nil && (e.Urgency == nil || *e.Urgency != *opts.Urgency) {
			continue
		}
		result = append(result, e)
	}

	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result
}

// ParseDuration parses a duration string with extended formats.
// Supports: 48h, 7d, 1w, 0 (all time)
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)

	// Special case: 0 means no filter (all time)
	if s == "0" || s == "" {
		return 0, nil
	}

	// Handle day suffix (7d -> 168h)
	if daysStr, found := strings.CutSuffix(s, "d"); found {
		days, err := strconv.Atoi(daysStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}

	// Handle week suffix (1w -> 168h)
	if weeksStr, found := strings.CutSuffix(s, "w"); found {
		weeks, err := strconv.Atoi(weeksStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		return time.Duration(weeks) * 7 * 24 * time.Hour, nil
	}

	// Standard Go duration parsing
	return time.ParseDuration(s)
}

// ParseUrgency parses an urgency string to its hint value.
// Accepts: low, normal, critical, 0, 1, 2
func ParseUrgency(s string) (uint8, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "0":
		return UrgencyLow, nil
	case "normal", "1":
		return UrgencyNormal, nil
	case "critical", "2":
		return UrgencyCritical, nil
	default:
		return 0, fmt.Errorf("invalid urgency: %s (use low, normal, or critical)", s)
	}
}

// UrgencyLabel renders an urgency hint for display. A nil hint means the
// sender did not set one.
func UrgencyLabel(u *uint8) string {
	if u == nil {
		return ""
	}
	switch *u {
	case UrgencyLow:
		return "low"
	case UrgencyNormal:
		return "normal"
	case UrgencyCritical:
		return "critical"
	default:
		return strconv.Itoa(int(*u))
	}
}

// ParseKind parses an entry kind string.
func ParseKind(s string) (journal.Kind, error) {
	k := journal.Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case journal.KindForwarded, journal.KindRejected, journal.KindDismissed,
		journal.KindAction, journal.KindReplied, journal.KindRestart,
		journal.KindConnect, journal.KindDisconnect:
		return k, nil
	default:
		return "", fmt.Errorf("invalid kind: %s", s)
	}
}

// filterFields maps the field names (and aliases) ParseFilter accepts to
// their canonical names.
var filterFields = map[string]string{
	"peer":     "peer",
	"vm":       "peer",
	"app":      "app",
	"app_name": "app",
	"appname":  "app",
	"summary":  "summary",
	"title":    "summary",
	"kind":     "kind",
	"type":     "kind",
	"urgency":  "urgency",
	"priority": "urgency",
	"time":     "time",
	"ts":       "time",
	"error":    "error",
}

// IsFilterExpression reports whether a query string looks like a filter
// expression rather than plain text to search for.
func IsFilterExpression(query string) bool {
	expr, err := ParseFilter(query)
	return err == nil && len(expr.Conditions) > 0
}

// ParseFilter parses a filter expression string into a FilterExpr.
// Format: "field=value,field2~value2,field3>value3"
// Multiple conditions are comma-separated and ANDed together.
//
// Supported fields: peer, app, summary, kind, urgency, time, error
// Supported operators: = (equal), != (not equal), ~ (contains), ~= (regex), >, <, >=, <=
//
// Examples:
//   - "peer=workvm" - entries from one guest
//   - "summary~error" - summary contains "error"
//   - "urgency>=normal" - urgency is normal or higher
//   - "peer=workvm,kind=rejected" - rejected notifications from workvm
//   - "summary~=(?i)meeting" - summary matches regex (case-insensitive "meeting")
//   - "time>1h" - entries from the last hour
//   - "time<7d" - entries older than a week
func ParseFilter(expr string) (*FilterExpr, error) {
	if expr == "" {
		return &FilterExpr{}, nil
	}

	filter := &FilterExpr{
		Conditions: make([]FilterCondition, 0),
	}

	for part := range strings.SplitSeq(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		cond, err := parseCondition(part)
		if err != nil {
			return nil, err
		}
		filter.Conditions = append(filter.Conditions, cond)
	}

	return filter, nil
}

// parseCondition parses a single condition like "peer=workvm" or "summary~error"
func parseCondition(s string) (FilterCondition, error) {
	// Try operators in order of specificity (longest first)
	operators := []FilterOp{
		FilterOpNotEqual,  // != (must be before =)
		FilterOpGreaterEq, // >= (must be before >)
		FilterOpLessEq,    // <= (must be before <)
		FilterOpRegex,     // ~= (must be before ~)
		FilterOpEqual,
		FilterOpContains,
		FilterOpGreater,
		FilterOpLess,
	}

	for _, op := range operators {
		idx := strings.Index(s, string(op))
		if idx > 0 {
			field := strings.TrimSpace(s[:idx])
			value := strings.TrimSpace(s[idx+len(op):])

			cond := FilterCondition{
				Field:    strings.ToLower(field),
				Operator: op,
				Value:    value,
			}

			if err := cond.init(); err != nil {
				return FilterCondition{}, err
			}

			return cond, nil
		}
	}

	return FilterCondition{}, fmt.Errorf("invalid filter condition: %s (missing operator)", s)
}

// init normalizes the field name and pre-parses the condition value.
func (c *FilterCondition) init() error {
	field, ok := filterFields[c.Field]
	if !ok {
		return fmt.Errorf("unknown filter field: %s", c.Field)
	}
	c.Field = field

	switch c.Field {
	case "urgency":
		u, err := ParseUrgency(c.Value)
		if err != nil {
			return err
		}
		c.urgencyVal = u
	case "kind":
		k, err := ParseKind(c.Value)
		if err != nil {
			return err
		}
		c.kindVal = k
	case "time":
		// Relative comparisons against now-duration: "time>1h" keeps
		// entries newer than an hour
		dur, err := ParseDuration(c.Value)
		if err != nil {
			return fmt.Errorf("invalid time value: %w", err)
		}
		c.cutoff = time.Now().Add(-dur)
	}

	if c.Operator == FilterOpRegex {
		re, err := regexp.Compile(c.Value)
		if err != nil {
			return fmt.Errorf("invalid regex: %w", err)
		}
		c.regex = re
	}

	return nil
}

// Match tests if an entry matches the filter expression.
// All conditions must match (AND logic).
func (f *FilterExpr) Match(e journal.Entry) bool {
	for _, cond := range f.Conditions {
		if !cond.Match(e) {
			return false
		}
	}
	return true
}

// Match tests if an entry matches this single condition.
func (c *FilterCondition) Match(e journal.Entry) bool {
	switch c.Field {
	case "peer":
		return c.matchString(e.Peer)
	case "app":
		return c.matchString(e.AppName)
	case "summary":
		return c.matchString(e.Summary)
	case "kind":
		return c.matchKind(e.Kind)
	case "urgency":
		return c.matchUrgency(e.Urgency)
	case "time":
		return c.matchTime(e.Time)
	case "error":
		return c.matchString(e.Error)
	default:
		return false
	}
}

// matchString matches a string field.
func (c *FilterCondition) matchString(fieldValue string) bool {
	switch c.Operator {
	case FilterOpEqual:
		return fieldValue == c.Value
	case FilterOpNotEqual:
		return fieldValue != c.Value
	case FilterOpContains:
		return strings.Contains(strings.ToLower(fieldValue), strings.ToLower(c.Value))
	case FilterOpRegex:
		return c.regex != nil && c.regex.MatchString(fieldValue)
	default:
		return false
	}
}

// matchKind matches the entry kind.
func (c *FilterCondition) matchKind(k journal.Kind) bool {
	switch c.Operator {
	case FilterOpEqual:
		return k == c.kindVal
	case FilterOpNotEqual:
		return k != c.kindVal
	default:
		return false
	}
}

// matchUrgency matches the urgency hint numerically. Entries without the
// hint never match.
func (c *FilterCondition) matchUrgency(u *uint8) bool {
	if u == nil {
		return false
	}
	fieldValue, condValue := int(*u), int(c.urgencyVal)

	switch c.Operator {
	case FilterOpEqual:
		return fieldValue == condValue
	case FilterOpNotEqual:
		return fieldValue != condValue
	case FilterOpGreater:
		return fieldValue > condValue
	case FilterOpLess:
		return fieldValue < condValue
	case FilterOpGreaterEq:
		return fieldValue >= condValue
	case FilterOpLessEq:
		return fieldValue <= condValue
	default:
		return false
	}
}

// matchTime matches the entry time against the cutoff.
func (c *FilterCondition) matchTime(fieldValue time.Time) bool {
	switch c.Operator {
	case FilterOpGreater:
		return fieldValue.After(c.cutoff)
	case FilterOpLess:
		return fieldValue.Before(c.cutoff)
	case FilterOpGreaterEq:
		return fieldValue.After(c.cutoff) || fieldValue.Equal(c.cutoff)
	case FilterOpLessEq:
		return fieldValue.Before(c.cutoff) || fieldValue.Equal(c.cutoff)
	default:
		return false
	}
}

// FilterWithExpr filters entries using a filter expression.
func FilterWithExpr(entries []journal.Entry, expr *FilterExpr) []journal.Entry {
	if expr == nil || len(expr.Conditions) == 0 {
		return entries
	}

	result := make([]journal.Entry, 0, len(entries))
	for _, e := range entries {
		if expr.Match(e) {
			result = append(result, e)
		}
	}
	return result
}
