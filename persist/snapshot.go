// Package persist serializes engine state between process runs. The engine
// itself performs no I/O; a Store is an external collaborator invoked
// between operations.
package persist

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BaSui01/memflow/cache"
	"github.com/BaSui01/memflow/memory"
	"github.com/BaSui01/memflow/types"
)

// Snapshot is the full serializable engine state. Every field of the
// underlying records round-trips losslessly through Encode/Decode.
type Snapshot struct {
	SavedAt         time.Time                    `json:"saved_at"`
	WorkingItems    []types.Item                 `json:"working_items"`
	Episodes        []memory.EpisodicEvent       `json:"episodes"`
	Patterns        []memory.ConsolidatedPattern `json:"patterns"`
	ExactEntries    []cache.ExactEntry           `json:"exact_entries,omitempty"`
	SemanticEntries []cache.SemanticEntry        `json:"semantic_entries,omitempty"`
}

// Encode serializes the snapshot as JSON.
func (s *Snapshot) Encode() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Decode deserializes a snapshot produced by Encode.
func Decode(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Store persists snapshots. Load returns (nil, nil) when no snapshot has
// been saved yet.
type Store interface {
	Save(ctx context.Context, snapshot *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}
