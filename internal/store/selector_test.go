// ABOUTME: Tests for the backend selector
// ABOUTME: Verifies the priority order and that decisions are made fresh per call

package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelector_ProxyWinsWhenConfigured(t *testing.T) {
	proxy := NewProxyStore("http://upstream.example", time.Second)
	memory := NewMemoryStore()

	sel := NewSelector(proxy, nil, nil, memory, slog.Default())
	assert.Equal(t, "proxy", sel.Resolve(context.Background()).Name())
}

func TestSelector_SQLiteBeforeMemory(t *testing.T) {
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "admin.db"))
	require.NoError(t, err)
	defer sqlite.Close()

	sel := NewSelector(nil, nil, sqlite, NewMemoryStore(), slog.Default())
	assert.Equal(t, "sqlite", sel.Resolve(context.Background()).Name())
}

func TestSelector_MemoryFallback(t *testing.T) {
	sel := NewSelector(nil, nil, nil, NewMemoryStore(), slog.Default())
	assert.Equal(t, "memory", sel.Resolve(context.Background()).Name())
}

func TestSelector_RecoversClosedSQLite(t *testing.T) {
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "admin.db"))
	require.NoError(t, err)

	sel := NewSelector(nil, nil, sqlite, NewMemoryStore(), slog.Default())
	assert.Equal(t, "sqlite", sel.Resolve(context.Background()).Name())

	// Once the sqlite handle dies, the next resolution falls through
	require.NoError(t, sqlite.Close())
	assert.Equal(t, "memory", sel.Resolve(context.Background()).Name())
}

func TestSelector_Active(t *testing.T) {
	sel := NewSelector(nil, nil, nil, NewMemoryStore(), slog.Default())
	assert.Equal(t, "memory", sel.Active(context.Background()))
}
