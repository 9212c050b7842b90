package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reifydb/reifydb/pkg/store"
	"github.com/reifydb/reifydb/pkg/store/boltstore"
	"github.com/reifydb/reifydb/pkg/store/memstore"
)

func backends(t *testing.T) map[string]store.Backend {
	bolt, err := boltstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })
	return map[string]store.Backend{
		"memstore":  memstore.New(),
		"boltstore": bolt,
	}
}

func TestBackendGetVisibility(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			k := store.EncodedKey("k1")
			require.NoError(t, b.Commit(ctx, []store.Delta{{Key: k, Value: []byte("v1")}}, 10))
			require.NoError(t, b.Commit(ctx, []store.Delta{{Key: k, Value: []byte("v2")}}, 20))

			v, ok, err := b.Get(ctx, k, 5)
			require.NoError(t, err)
			assert.False(t, ok, "no write visible before version 10")

			v, ok, err = b.Get(ctx, k, 10)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "v1", string(v))

			v, ok, err = b.Get(ctx, k, 15)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "v1", string(v))

			v, ok, err = b.Get(ctx, k, 20)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "v2", string(v))
		})
	}
}

func TestBackendRemovalOccludes(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			k := store.EncodedKey("k1")
			require.NoError(t, b.Commit(ctx, []store.Delta{{Key: k, Value: []byte("v1")}}, 10))
			require.NoError(t, b.Commit(ctx, []store.Delta{{Key: k, Tombstone: true}}, 20))

			_, ok, err := b.Get(ctx, k, 10)
			require.NoError(t, err)
			assert.True(t, ok)

			_, ok, err = b.Get(ctx, k, 20)
			require.NoError(t, err)
			assert.False(t, ok, "removal at 20 must occlude the value written at 10")

			ok, err = b.Contains(ctx, k, 20)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestBackendCommitIsAtomicPerBatch(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			deltas := []store.Delta{
				{Key: store.EncodedKey("a"), Value: []byte("1")},
				{Key: store.EncodedKey("b"), Value: []byte("2")},
			}
			require.NoError(t, b.Commit(ctx, deltas, 5))

			_, aOK, err := b.Get(ctx, store.EncodedKey("a"), 5)
			require.NoError(t, err)
			_, bOK, err := b.Get(ctx, store.EncodedKey("b"), 5)
			require.NoError(t, err)
			assert.True(t, aOK)
			assert.True(t, bOK)
		})
	}
}

func TestBackendRangeScanOrdering(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			keys := []string{"a", "b", "c", "d"}
			for i, k := range keys {
				require.NoError(t, b.Commit(ctx, []store.Delta{
					{Key: store.EncodedKey(k), Value: []byte(k)},
				}, store.Version(i+1)))
			}

			it, err := b.Range(ctx, store.KeyRange{Start: store.EncodedKey("b"), End: store.EncodedKey("d")}, 100, 0)
			require.NoError(t, err)
			defer it.Close()

			var got []string
			for it.Next() {
				got = append(got, string(it.Entry().Key))
			}
			require.NoError(t, it.Err())
			assert.Equal(t, []string{"b", "c"}, got)
		})
	}
}

func TestBackendRangeRevScanOrdering(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			keys := []string{"a", "b", "c", "d"}
			for i, k := range keys {
				require.NoError(t, b.Commit(ctx, []store.Delta{
					{Key: store.EncodedKey(k), Value: []byte(k)},
				}, store.Version(i+1)))
			}

			it, err := b.RangeRev(ctx, store.KeyRange{}, 100, 0)
			require.NoError(t, err)
			defer it.Close()

			var got []string
			for it.Next() {
				got = append(got, string(it.Entry().Key))
			}
			require.NoError(t, it.Err())
			assert.Equal(t, []string{"d", "c", "b", "a"}, got)
		})
	}
}

func TestBackendScanRespectsVersionSnapshot(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, b.Commit(ctx, []store.Delta{{Key: store.EncodedKey("a"), Value: []byte("1")}}, 1))
			require.NoError(t, b.Commit(ctx, []store.Delta{{Key: store.EncodedKey("b"), Value: []byte("1")}}, 2))

			it, err := b.Scan(ctx, 1)
			require.NoError(t, err)
			var got []string
			for it.Next() {
				got = append(got, string(it.Entry().Key))
			}
			require.NoError(t, it.Err())
			it.Close()
			assert.Equal(t, []string{"a"}, got, "scan at version 1 must not see b written at version 2")
		})
	}
}

func TestBackendObsoleteIdentifiesSupersededVersions(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			k := store.EncodedKey("k1")
			require.NoError(t, b.Commit(ctx, []store.Delta{{Key: k, Value: []byte("v1")}}, 10))
			require.NoError(t, b.Commit(ctx, []store.Delta{{Key: k, Value: []byte("v2")}}, 20))
			require.NoError(t, b.Commit(ctx, []store.Delta{{Key: k, Value: []byte("v3")}}, 30))

			obsolete, err := b.Obsolete(ctx, 25)
			require.NoError(t, err)
			require.Len(t, obsolete, 1)
			assert.Equal(t, k, obsolete[0].Key)
			assert.Equal(t, store.Version(10), obsolete[0].Version)

			require.NoError(t, b.Drop(ctx, obsolete))

			_, ok, err := b.Get(ctx, k, 20)
			require.NoError(t, err)
			assert.True(t, ok, "version still visible at 20 must survive")

			obsoleteAfter, err := b.Obsolete(ctx, 30)
			require.NoError(t, err)
			require.Len(t, obsoleteAfter, 1)
			assert.Equal(t, store.Version(20), obsoleteAfter[0].Version)
		})
	}
}

func TestBackendDropRemovesSupersededVersion(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			k := store.EncodedKey("k1")
			require.NoError(t, b.Commit(ctx, []store.Delta{{Key: k, Value: []byte("v1")}}, 10))
			require.NoError(t, b.Commit(ctx, []store.Delta{{Key: k, Value: []byte("v2")}}, 20))

			require.NoError(t, b.Drop(ctx, []store.KeyVersion{{Key: k, Version: 10}}))

			_, ok, err := b.Get(ctx, k, 20)
			require.NoError(t, err)
			assert.True(t, ok, "dropping the superseded version must not affect the live one")
		})
	}
}
