package cache

import (
	"context"
	"time"

	"github.com/giygas/medicaments-search/interfaces"
)

// Typed is a cache view that reads and writes values of one type
type Typed[T any] struct {
	m interfaces.Cache
}

// NewTyped wraps m
func NewTyped[T any](m interfaces.Cache) *Typed[T] {
	return &Typed[T]{m: m}
}

func (t *Typed[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var v T
	ok, err := t.m.Get(ctx, key, &v)
	return v, ok, err
}

func (t *Typed[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	return t.m.Set(ctx, key, value, ttl)
}

func (t *Typed[T]) GetOrSet(ctx context.Context, key string, producer func(ctx context.Context) (T, error), ttl time.Duration) (T, error) {
	var v T
	err := t.m.GetOrSet(ctx, key, &v, func(ctx context.Context) (any, error) {
		return producer(ctx)
	}, ttl)
	return v, err
}

func (t *Typed[T]) Delete(ctx context.Context, key string) {
	t.m.Delete(ctx, key)
}

func (t *Typed[T]) Clear(ctx context.Context) {
	t.m.Clear(ctx)
}
