// ABOUTME: Backend selector deciding which store serves a request
// ABOUTME: Re-evaluates availability on every call; never caches its decision

package store

import (
	"context"
	"log/slog"
)

// Selector resolves the authoritative backend for each request. Priority:
// a configured remote proxy always wins (it is the shared service of
// record), then the document store if its connection is live, then the
// local relational store, then the in-process fallback. The decision is
// made fresh per call so a recovering connection is picked up immediately.
type Selector struct {
	proxy    *ProxyStore
	postgres *PostgresStore
	sqlite   *SQLiteStore
	memory   *MemoryStore
	logger   *slog.Logger
}

// NewSelector creates a selector over the available backends. Any of proxy,
// postgres, and sqlite may be nil; memory must not be.
func NewSelector(proxy *ProxyStore, postgres *PostgresStore, sqlite *SQLiteStore, memory *MemoryStore, logger *slog.Logger) *Selector {
	return &Selector{
		proxy:    proxy,
		postgres: postgres,
		sqlite:   sqlite,
		memory:   memory,
		logger:   logger.With("component", "selector"),
	}
}

// Resolve returns the authoritative store for this request.
func (s *Selector) Resolve(ctx context.Context) Store {
	if s.proxy != nil {
		return s.proxy
	}

	if s.postgres != nil {
		err := s.postgres.Ping(ctx)
		if err == nil {
			return s.postgres
		}
		s.logger.Debug("document store unavailable", "error", err)
	}

	if s.sqlite != nil {
		err := s.sqlite.Ping(ctx)
		if err == nil {
			return s.sqlite
		}
		s.logger.Debug("relational store unavailable", "error", err)
	}

	return s.memory
}

// Active reports the name of the backend a request made now would use.
func (s *Selector) Active(ctx context.Context) string {
	return s.Resolve(ctx).Name()
}
