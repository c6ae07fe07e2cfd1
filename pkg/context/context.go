package context

import (
	"context"
	"time"
)

const (
	// ShortTimeout bounds quick lookups such as presence reads.
	ShortTimeout = 5 * time.Second

	// StoreTimeout bounds call record reads and write-throughs.
	StoreTimeout = 10 * time.Second
)

// WithShortTimeout creates a context with the short timeout.
func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ShortTimeout)
}

// WithStoreTimeout creates a context with the store timeout.
func WithStoreTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, StoreTimeout)
}
