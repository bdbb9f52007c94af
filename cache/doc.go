/*
Package cache provides response caching for conversational agents, skipping
regeneration for previously-seen or sufficiently-similar queries.

Two in-memory variants implement the same Get/Set/Stats surface:

  - [ExactCache]: a bounded map keyed by a normalized hash of the query.
    Overflow evicts the single oldest entry by creation time.
  - [SemanticCache]: a flat list of query/response pairs scored at lookup
    time with a lexical similarity function. A lookup hits iff the best
    score reaches the configured threshold. Set never evicts, so the
    semantic variant grows without bound; deployments with long-lived
    sessions should front it with a bound of their own.

[RedisCache] is an optional exact-match tier shared across processes,
following the local-then-Redis layering used for prompt caching. [Metrics]
exposes hit/miss/size series on a caller-supplied Prometheus registerer.
*/
package cache
