package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/windowbus/internal/infrastructure/config"
)

type backend struct {
	name string
	open func(t *testing.T) Store
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) Store { return NewMemoryStore() }},
		{"sqlite", func(t *testing.T) Store {
			s, err := NewSQLiteStore(":memory:", nil)
			require.NoError(t, err)
			return s
		}},
		{"redis", func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			s, err := NewRedisStore(mr.Addr(), "", 0, "test:")
			require.NoError(t, err)
			return s
		}},
	}
}

func TestStoreContract(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()
			ctx := context.Background()

			_, err := s.Get(ctx, KeySession)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, KeySession, "sess_1"))
			v, err := s.Get(ctx, KeySession)
			require.NoError(t, err)
			assert.Equal(t, "sess_1", v)

			require.NoError(t, s.Set(ctx, KeySession, "sess_2"))
			v, _ = s.Get(ctx, KeySession)
			assert.Equal(t, "sess_2", v)

			require.NoError(t, s.Delete(ctx, KeySession))
			_, err = s.Get(ctx, KeySession)
			assert.ErrorIs(t, err, ErrNotFound)

			// Deleting a missing key is fine
			assert.NoError(t, s.Delete(ctx, "missing"))
		})
	}
}

func TestStoreGetOrSet(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()
			ctx := context.Background()

			v, err := s.GetOrSet(ctx, KeyAddon, "crm")
			require.NoError(t, err)
			assert.Equal(t, "crm", v)

			v, err = s.GetOrSet(ctx, KeyAddon, "billing")
			require.NoError(t, err)
			assert.Equal(t, "crm", v, "first writer wins")
		})
	}
}

func TestStoreWindowKeysAreIsolated(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()
			ctx := context.Background()

			require.NoError(t, s.Set(ctx, ContextKey("win_a"), `{"project":"A"}`))

			_, err := s.Get(ctx, ContextKey("win_b"))
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemoryStoreConcurrentGetOrSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]string, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = s.GetOrSet(ctx, KeySession, "sess_"+string(rune('a'+i)))
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
	assert.Equal(t, 1, s.Len())
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, KeySession, "sess_keep"))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path, nil)
	require.NoError(t, err)
	defer s.Close()

	v, err := s.Get(ctx, KeySession)
	require.NoError(t, err)
	assert.Equal(t, "sess_keep", v)
}

func TestRedisStorePrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(mr.Addr(), "", 0, "windowbus:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(context.Background(), KeySession, "sess_1"))

	raw, err := mr.Get("windowbus:session_id")
	require.NoError(t, err)
	assert.Equal(t, "sess_1", raw)
}

func TestNewRedisStoreUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisStore(addr, "", 0, "")
	assert.Error(t, err)
}

func TestFactory(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StoreConfig
		want    any
		wantErr bool
	}{
		{"default", config.StoreConfig{}, &MemoryStore{}, false},
		{"memory", config.StoreConfig{Driver: "memory"}, &MemoryStore{}, false},
		{"sqlite", config.StoreConfig{Driver: "sqlite", Path: ":memory:"}, &SQLiteStore{}, false},
		{"unknown", config.StoreConfig{Driver: "etcd"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.cfg, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer s.Close()
			assert.IsType(t, tt.want, s)
		})
	}
}
