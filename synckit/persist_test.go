package synckit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncErrors "github.com/c0deZ3R0/sitesync/errors"
	"github.com/c0deZ3R0/sitesync/logging"
	"github.com/c0deZ3R0/sitesync/storage/memory"
	"github.com/c0deZ3R0/sitesync/version"
)

func TestSnapshot_SaveLoad(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()

	s := newTestStore()
	s.Replace(map[string]site{"synced": {Name: "S"}}, siteRecords{"synced": InitialRecord[site, string](site{Name: "S"})})
	s.Update("dirty", site{Name: "D"}, t0)
	s.Update("bad", site{Name: "B"}, t0)
	s.MarkError("bad", SyncResult[string]{Value: "rejected", RevisionID: version.At(1)}, t0)

	require.NoError(t, SaveSnapshot(ctx, kv, JSONCodec{}, "sites", s.Snapshot()))
	assert.Equal(t, []string{"sites.data", "sites.records"}, kv.Keys())

	data, rs, found, err := LoadSnapshot[site, string](ctx, kv, JSONCodec{}, "sites")
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, s.Snapshot().Data(), data)
	assert.Equal(t, s.Snapshot().Records(), rs)
	assert.Equal(t, []string{"dirty"}, UnsyncedIDs(rs))
	assert.Equal(t, []string{"bad"}, ErrorIDs(rs))
	assert.False(t, rs["synced"].RevisionID.IsSet(), "unset revisions survive the round trip")
}

func TestLoadSnapshot_Missing(t *testing.T) {
	_, _, found, err := LoadSnapshot[site, string](context.Background(), memory.New(), JSONCodec{}, "sites")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLoadSnapshot_Corrupt(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	require.NoError(t, kv.Set(ctx, RecordsKey("sites"), []byte("{not json")))

	_, _, _, err := LoadSnapshot[site, string](ctx, kv, JSONCodec{}, "sites")
	require.Error(t, err)
	assert.True(t, syncErrors.IsKind(err, syncErrors.KindInvalid))
}

func TestSaveSnapshot_KVFailure(t *testing.T) {
	err := SaveSnapshot(context.Background(), failingKV{}, JSONCodec{}, "sites", newTestStore().Snapshot())
	assert.ErrorContains(t, err, "disk full")
}

func TestSnapshot_SaveLoadStructErrors(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()

	s := NewStore[site, fieldErrors](logging.Discard().Logger)
	s.Update("bad", site{}, t0)
	s.MarkError("bad", SyncResult[fieldErrors]{Value: fieldErrors{Field: "name", Message: "required"}, RevisionID: version.At(1)}, t0)

	require.NoError(t, SaveSnapshot(ctx, kv, JSONCodec{}, "sites", s.Snapshot()))

	_, rs, found, err := LoadSnapshot[site, fieldErrors](ctx, kv, JSONCodec{}, "sites")
	require.NoError(t, err)
	require.True(t, found)
	require.NotNil(t, rs["bad"].LastSyncedError)
	assert.Equal(t, fieldErrors{Field: "name", Message: "required"}, *rs["bad"].LastSyncedError)
	assert.Equal(t, []string{"bad"}, ErrorIDs(rs))
}
