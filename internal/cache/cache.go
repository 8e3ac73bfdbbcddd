// Package cache holds short-lived copies of computed uptime history responses.
package cache

import (
	"context"
	"errors"
	"fmt"
)

// ErrMiss is returned when a key is absent from the cache.
var ErrMiss = errors.New("cache miss")

// Store is the read-through cache used by the uptime history reader.
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}) error
	// DeletePrefix drops every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}

// HistoryPrefix is the key prefix shared by every history window of one entity.
func HistoryPrefix(kind, id string) string {
	return fmt.Sprintf("uptime:history:%s:%s:", kind, id)
}

// HistoryKey identifies one history response. today is the last day of the window,
// so entries roll over at local midnight.
func HistoryKey(kind, id string, days int, today string) string {
	return fmt.Sprintf("%s%d:%s", HistoryPrefix(kind, id), days, today)
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string, interface{}) error { return ErrMiss }
func (Noop) Set(context.Context, string, interface{}) error { return nil }
func (Noop) DeletePrefix(context.Context, string) error { return nil }
func (Noop) Close() error { return nil }
