package health

import "context"

// Pinger is satisfied by every backend store: Redis, pgvector and Badger.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks the embedding provider with a tiny request.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}
