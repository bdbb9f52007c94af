package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/memflow/types"
)

// EpisodicEvent is a single timestamped interaction event. Events are
// never mutated after Append; the only deletion path is the consolidator's
// forgetting pass.
type EpisodicEvent struct {
	Item types.Item `json:"item"`

	// Tags carry contextual metadata (who/what/when labels). Matched as a
	// set; duplicates are irrelevant.
	Tags []string `json:"tags,omitempty"`

	// Seq is the store-assigned, strictly increasing sequence index.
	Seq int `json:"seq"`
}

// HasTag reports whether the event carries the given tag.
func (e *EpisodicEvent) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// EpisodicQuery filters an EpisodicStore query. All provided filters must
// match (conjunctive).
type EpisodicQuery struct {
	// Since keeps only events whose item was created at or after this time.
	Since time.Time

	// Tags keeps only events carrying every listed tag.
	Tags []string

	// Limit caps the result length. <= 0 means unbounded.
	Limit int
}

// EpisodicStore is an append-only log of interaction events.
type EpisodicStore struct {
	mu      sync.RWMutex
	events  []EpisodicEvent
	nextSeq int
	logger  *zap.Logger
}

// NewEpisodicStore creates an empty episodic store.
func NewEpisodicStore(logger *zap.Logger) *EpisodicStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EpisodicStore{
		events: make([]EpisodicEvent, 0),
		logger: logger.With(zap.String("component", "episodic_store")),
	}
}

// Append records an event. The store assigns the sequence index and keeps
// its own copy, so later changes to the caller's value are not observed.
func (s *EpisodicStore) Append(ctx context.Context, event EpisodicEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	event.Seq = s.nextSeq
	s.nextSeq++
	event.Tags = append([]string(nil), event.Tags...)
	s.events = append(s.events, event)

	s.logger.Debug("episodic event recorded",
		zap.String("id", event.Item.ID),
		zap.Int("seq", event.Seq))

	return nil
}

// Query returns matching events ordered newest-first (by sequence index).
// The result is a finite, restartable copy; absence of matches is an empty
// slice, not an error.
func (s *EpisodicStore) Query(ctx context.Context, q EpisodicQuery) ([]EpisodicEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]EpisodicEvent, 0)
	for _, ev := range s.events {
		if !q.Since.IsZero() && ev.Item.CreatedAt.Before(q.Since) {
			continue
		}
		if !matchesAllTags(&ev, q.Tags) {
			continue
		}
		results = append(results, ev)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Seq > results[j].Seq
	})

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

func matchesAllTags(ev *EpisodicEvent, tags []string) bool {
	for _, tag := range tags {
		if !ev.HasTag(tag) {
			return false
		}
	}
	return true
}

// Len returns the number of stored events.
func (s *EpisodicStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Restore replaces the store contents with the given events, preserving
// their sequence indexes. Used when rehydrating from a snapshot.
func (s *EpisodicStore) Restore(events []EpisodicEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make([]EpisodicEvent, len(events))
	copy(s.events, events)
	s.nextSeq = 0
	for i := range s.events {
		s.events[i].Tags = append([]string(nil), events[i].Tags...)
		if s.events[i].Seq >= s.nextSeq {
			s.nextSeq = s.events[i].Seq + 1
		}
	}
}

// touch updates access metadata on the event owning the given item id.
func (s *EpisodicStore) touch(id string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].Item.ID == id {
			s.events[i].Item.Touch(now)
			return
		}
	}
}

// remove deletes the events whose item IDs appear in ids. Only the
// consolidator's forgetting pass calls this; it returns the removed count.
func (s *EpisodicStore) remove(ids map[string]struct{}) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	removed := 0
	for _, ev := range s.events {
		if _, gone := ids[ev.Item.ID]; gone {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept

	if removed > 0 {
		s.logger.Debug("episodic events forgotten", zap.Int("count", removed))
	}
	return removed
}
