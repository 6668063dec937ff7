package prefs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDriverFor(t *testing.T) {
	assert.Equal(t, "pgx", driverFor("postgres://u@localhost/app"))
	assert.Equal(t, "pgx", driverFor("PostgreSQL://u@localhost/app"))
	assert.Equal(t, "sqlite", driverFor("file:prefs.db"))
	assert.Equal(t, "sqlite", driverFor(":memory:"))
}

func TestStore_GetSet(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v1"))
	require.NoError(t, s.Set(ctx, "k", "v2"))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)
}

func TestStore_Language(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	l, err := s.Language(ctx)
	require.NoError(t, err)
	assert.Equal(t, English, l)

	require.NoError(t, s.SetLanguage(ctx, Armenian))
	l, err = s.Language(ctx)
	require.NoError(t, err)
	assert.Equal(t, Armenian, l)

	require.NoError(t, s.Set(ctx, languageKey, "klingon"))
	l, err = s.Language(ctx)
	require.NoError(t, err)
	assert.Equal(t, English, l)
}

func TestStore_EnsureLanguage(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	l, err := s.EnsureLanguage(ctx, Russian)
	require.NoError(t, err)
	assert.Equal(t, Russian, l)

	l, err = s.EnsureLanguage(ctx, Armenian)
	require.NoError(t, err)
	assert.Equal(t, Russian, l, "stored value wins")
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.SetLanguage(ctx, Russian))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	l, err := s.Language(ctx)
	require.NoError(t, err)
	assert.Equal(t, Russian, l)
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), " ")
	assert.Error(t, err)
}

func TestParseLanguage(t *testing.T) {
	assert.Equal(t, Russian, ParseLanguage(" RU "))
	assert.Equal(t, English, ParseLanguage(""))
}
