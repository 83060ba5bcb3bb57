package domain

import (
	"context"
	"sync/atomic"
)

type usageKey struct{}

// EmbeddingUsage tallies provider calls made on behalf of one request.
// Batch ingestion embeds from several workers at once, so the counters are
// atomic.
type EmbeddingUsage struct {
	tokens atomic.Int64
	calls  atomic.Int64
}

// NewContextWithUsage attaches an empty tally to ctx.
func NewContextWithUsage(ctx context.Context) (context.Context, *EmbeddingUsage) {
	u := new(EmbeddingUsage)
	return context.WithValue(ctx, usageKey{}, u), u
}

// UsageFromContext returns the tally on ctx, or nil.
func UsageFromContext(ctx context.Context) *EmbeddingUsage {
	u, _ := ctx.Value(usageKey{}).(*EmbeddingUsage)
	return u
}

// Add counts one call. A nil tally ignores it.
func (u *EmbeddingUsage) Add(tokens int) {
	if u == nil {
		return
	}
	u.calls.Add(1)
	u.tokens.Add(int64(tokens))
}

func (u *EmbeddingUsage) Tokens() int { return int(u.tokens.Load()) }
func (u *EmbeddingUsage) Calls() int  { return int(u.calls.Load()) }
