// Package repolock serializes git-mutating operations per repository.
//
// Each repository path gets its own weighted semaphore of size one. Waiters
// are served in arrival order and honour context cancellation; operations on
// different repositories never contend.
package repolock

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Locker hands out one exclusive gate per repository path.
type Locker struct {
	mu     sync.Mutex
	gates  map[string]*semaphore.Weighted
	logger *zap.Logger
}

// Option configures a Locker.
type Option func(*Locker)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(lk *Locker) {
		if l != nil {
			lk.logger = l
		}
	}
}

// New creates a Locker.
func New(opts ...Option) *Locker {
	l := &Locker{
		gates:  make(map[string]*semaphore.Weighted),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key normalises a repository path so that equivalent spellings share a gate.
func Key(repoPath string) string {
	if abs, err := filepath.Abs(repoPath); err == nil {
		return abs
	}
	return filepath.Clean(repoPath)
}

func (l *Locker) gate(key string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	g, ok := l.gates[key]
	if !ok {
		g = semaphore.NewWeighted(1)
		l.gates[key] = g
	}
	return g
}

// Acquire blocks until the gate for repoPath is free or ctx is done.
// The returned release func is safe to call more than once.
func (l *Locker) Acquire(ctx context.Context, repoPath string) (func(), error) {
	key := Key(repoPath)
	g := l.gate(key)
	if err := g.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire repository lock %s: %w", key, err)
	}
	l.logger.Debug("repository lock acquired", zap.String("repo", key))

	var once sync.Once
	return func() {
		once.Do(func() {
			g.Release(1)
			l.logger.Debug("repository lock released", zap.String("repo", key))
		})
	}, nil
}

// TryAcquire takes the gate without waiting. ok is false if it is held.
func (l *Locker) TryAcquire(repoPath string) (release func(), ok bool) {
	key := Key(repoPath)
	g := l.gate(key)
	if !g.TryAcquire(1) {
		return nil, false
	}
	var once sync.Once
	return func() { once.Do(func() { g.Release(1) }) }, true
}

// WithLock runs fn while holding the gate for repoPath. The gate is released
// when fn returns or panics.
func (l *Locker) WithLock(ctx context.Context, repoPath string, fn func(ctx context.Context) error) error {
	release, err := l.Acquire(ctx, repoPath)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}
