package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "cdbot/pkg/logx"
)

func openTemp(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "db", "cdbot.db")}, logx.Nop())
	require.NoError(t, err)
	require.NotNil(t, st)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		require.NoError(t, err)
		assert.Nil(t, st)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "postgres"}, logx.Nop())
	assert.Error(t, err)
	_, err = Open(Config{Driver: "sqlite"}, logx.Nop())
	assert.Error(t, err)
}

func TestRoles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := openTemp(t)

	ok, err := st.HasRole(ctx, -100, 42)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.GrantRole(ctx, Role{ChatID: -100, UserID: 42, Username: "alice", GrantedAt: time.UnixMilli(1000)}))
	require.NoError(t, st.GrantRole(ctx, Role{ChatID: -100, UserID: 7, GrantedAt: time.UnixMilli(2000)}))
	require.NoError(t, st.GrantRole(ctx, Role{ChatID: -200, UserID: 42, GrantedAt: time.UnixMilli(3000)}))
	// Re-granting keeps the original grant time.
	require.NoError(t, st.GrantRole(ctx, Role{ChatID: -100, UserID: 42, Username: "alice2", GrantedAt: time.UnixMilli(9000)}))

	ok, err = st.HasRole(ctx, -100, 42)
	require.NoError(t, err)
	assert.True(t, ok)

	roles, err := st.ListRoles(ctx, -100)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, int64(42), roles[0].UserID)
	assert.Equal(t, "alice2", roles[0].Username)
	assert.Equal(t, int64(1000), roles[0].GrantedAt.UnixMilli())
	assert.Equal(t, int64(7), roles[1].UserID)

	removed, err := st.RevokeRole(ctx, -100, 42)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = st.RevokeRole(ctx, -100, 42)
	require.NoError(t, err)
	assert.False(t, removed)

	ok, err = st.HasRole(ctx, -200, 42)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDedupAndPrune(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := Open(Config{Driver: "memory"}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	now := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, st.PutDedup(ctx, "old", now.Add(-time.Minute)))
	require.NoError(t, st.PutDedup(ctx, "fresh", now.Add(time.Minute)))

	until, ok, err := st.GetDedup(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, now.Add(time.Minute).UnixMilli(), until.UnixMilli())

	n, err := st.PruneDedup(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, ok, err = st.GetDedup(ctx, "old")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAppendAudit(t *testing.T) {
	t.Parallel()
	st := openTemp(t)
	err := st.AppendAudit(context.Background(), AuditEntry{
		ActorID: 42, ChatID: -100, Action: "rpg.join", Target: "42",
	})
	assert.NoError(t, err)
}
