package types

import (
	"time"

	"github.com/google/uuid"
)

// Tier identifies the memory tier an item currently belongs to.
type Tier string

const (
	// TierSensory holds raw, not-yet-attended input.
	TierSensory Tier = "sensory"

	// TierWorking is the short-term attention window of the agent.
	TierWorking Tier = "working"

	// TierEpisodic is the append-only log of interaction events.
	TierEpisodic Tier = "episodic"

	// TierSemantic holds distilled factual content.
	TierSemantic Tier = "semantic"

	// TierPattern holds consolidated patterns promoted from episodes.
	TierPattern Tier = "pattern"

	// TierAbstract holds patterns reinforced across many consolidation windows.
	TierAbstract Tier = "abstract"
)

// Item is the record shared by every memory tier.
//
// Invariants: LastAccessedAt >= CreatedAt, Importance in [0,1].
// Items are treated as immutable except for the access metadata
// (LastAccessedAt, AccessCount), which only the owning component updates.
type Item struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	Importance     float64   `json:"importance"`
	Tier           Tier      `json:"tier"`
	AccessCount    int       `json:"access_count"`
	Embedding      []float64 `json:"embedding,omitempty"`
}

// NewItem creates an Item with a fresh ID and access metadata initialized
// to the given creation time. Importance is clamped to [0,1].
func NewItem(content string, importance float64, tier Tier, now time.Time) Item {
	return Item{
		ID:             uuid.NewString(),
		Content:        content,
		CreatedAt:      now,
		LastAccessedAt: now,
		Importance:     ClampImportance(importance),
		Tier:           tier,
	}
}

// Touch records an access at the given time.
func (it *Item) Touch(now time.Time) {
	if now.After(it.LastAccessedAt) {
		it.LastAccessedAt = now
	}
	it.AccessCount++
}

// ClampImportance clamps v to the [0,1] range.
func ClampImportance(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
