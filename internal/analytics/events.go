// Package analytics records answered job queries. Events are aggregated in
// memory for the stats endpoint and optionally published to Kafka in
// batches and persisted to PostgreSQL as periodic snapshots.
package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
)

// SearchEvent describes one answered query page.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Location  string    `json:"location,omitempty"`
	Total     int       `json:"total"`
	Returned  int       `json:"returned"`
	Offset    int       `json:"offset"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// NewSearchEvent fills in Type from total.
func NewSearchEvent(query, location string, total, returned, offset int, latency time.Duration, cacheHit bool) SearchEvent {
	typ := EventSearch
	if total == 0 {
		typ = EventZeroResult
	}
	return SearchEvent{
		Type:      typ,
		Query:     query,
		Location:  location,
		Total:     total,
		Returned:  returned,
		Offset:    offset,
		LatencyMs: latency.Milliseconds(),
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
	}
}

// Tracker accepts search events. Track must not block.
type Tracker interface {
	Track(event SearchEvent)
}

type fanout []Tracker

func (f fanout) Track(event SearchEvent) {
	for _, t := range f {
		t.Track(event)
	}
}

// Fanout returns a Tracker that forwards every event to each non-nil
// tracker in order.
func Fanout(trackers ...Tracker) Tracker {
	out := make(fanout, 0, len(trackers))
	for _, t := range trackers {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}
