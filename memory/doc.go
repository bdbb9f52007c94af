/*
Package memory implements the tiered memory engine for conversational
agents: a bounded working buffer, an append-only episodic store, a
token-budget-aware context window manager, and a hierarchical consolidator
that promotes recurring episodes into pattern and abstract tiers while
forgetting stale, low-importance entries.

# Components

  - [WorkingBuffer]: fixed-capacity recency buffer with FIFO or LRU
    eviction, modeling the agent's short-term attention window.
  - [EpisodicStore]: append-only log of timestamped interaction events,
    queryable by recency and tags.
  - [ContextManager]: compacts buffer and episodic contents into a bounded
    context under a token budget, with fifo, lru, and relevance strategies.
  - [Consolidator]: explicit consolidation pass clustering similar episodes
    into [ConsolidatedPattern] entries, reinforcing or decaying their
    strength across passes, and applying adaptive forgetting.

# Write and read flow

Writes flow one direction: WorkingBuffer evictions may be demoted into the
EpisodicStore, and the Consolidator compresses episodes upward into
patterns. Reads assemble context from all tiers through the ContextManager.

All components are synchronous and in-memory. Each instance carries a
single mutex as the mutual-exclusion boundary for callers that share an
engine across goroutines; there is no internal parallelism.
*/
package memory
