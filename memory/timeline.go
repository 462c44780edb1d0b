package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is one chronicle entry: what happened and when, keyed by the node it
// references.
type Event struct {
	NodeID   string            `json:"node_id"`
	Type     string            `json:"type"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Timeline is the temporal layer: an append-mostly chronicle mapping UTC
// timestamps to events. It also mints the canonical node identifiers, so
// every node is born with its place in time.
type Timeline struct {
	path      string
	chronicle map[string]Event
}

// NewTimeline loads the chronicle from path, or starts empty if the file does
// not exist. An empty path keeps the timeline memory-only.
func NewTimeline(path string) (*Timeline, error) {
	t := &Timeline{path: path, chronicle: make(map[string]Event)}
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("read chronicle: %w", err)
	}
	if err := json.Unmarshal(data, &t.chronicle); err != nil {
		return nil, fmt.Errorf("parse chronicle: %w", err)
	}
	return t, nil
}

// NewTimestampedID mints a fresh node ID and the UTC instant it belongs to.
// The ID embeds a UUID so collisions within one timestamp are impossible.
func NewTimestampedID(nodeType string) (string, time.Time) {
	now := time.Now().UTC()
	short := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s_%s_%s", strings.ToLower(nodeType), now.Format("20060102T150405"), short), now
}

// Record appends an event at ts.
func (t *Timeline) Record(ts time.Time, ev Event) {
	t.chronicle[ts.UTC().Format(time.RFC3339Nano)] = ev
}

// Has reports whether an event exists for the given node ID.
func (t *Timeline) Has(nodeID string) bool {
	for _, ev := range t.chronicle {
		if ev.NodeID == nodeID {
			return true
		}
	}
	return false
}

// QueryRange returns the node IDs of events recorded in [from, to),
// chronologically ordered.
func (t *Timeline) QueryRange(from, to time.Time) []string {
	type stamped struct {
		ts time.Time
		id string
	}
	var hits []stamped
	for key, ev := range t.chronicle {
		ts, err := time.Parse(time.RFC3339Nano, key)
		if err != nil {
			continue
		}
		if !ts.Before(from) && ts.Before(to) {
			hits = append(hits, stamped{ts, ev.NodeID})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].ts.Before(hits[j].ts) })
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.id)
	}
	return out
}

// QueryRelative resolves a named window ("last_hour", "today", "yesterday")
// against now and returns the node IDs inside it.
func (t *Timeline) QueryRelative(window string, now time.Time) []string {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch window {
	case "last_hour":
		return t.QueryRange(now.Add(-time.Hour), now)
	case "today":
		return t.QueryRange(midnight, now)
	case "yesterday":
		return t.QueryRange(midnight.AddDate(0, 0, -1), midnight)
	default:
		return nil
	}
}

// Save persists the chronicle. A memory-only timeline saves nowhere.
func (t *Timeline) Save() error {
	if t.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(t.chronicle, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chronicle: %w", err)
	}
	if err := os.WriteFile(t.path, data, 0o644); err != nil {
		return fmt.Errorf("write chronicle: %w", err)
	}
	return nil
}
