package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reifydb/reifydb/pkg/engine"
	"github.com/reifydb/reifydb/pkg/types"
)

func TestColumnDictionaryDeduplicatesAndTracksUndefined(t *testing.T) {
	col := engine.NewColumnData("category", types.Utf8, []types.Value{
		types.Utf8Val("Books"),
		types.Utf8Val("Electronics"),
		types.Utf8Val("Books"),
		types.Undef(types.Utf8),
		types.Utf8Val("Electronics"),
	})

	dict := col.Dictionary()
	assert.Equal(t, 5, dict.Len())
	assert.Equal(t, 2, dict.Cardinality())

	v, ok := dict.Get(0)
	assert.True(t, ok)
	assert.Equal(t, "Books", v)

	_, ok = dict.Get(3)
	assert.False(t, ok, "undefined row has no entry")

	v, ok = dict.Get(4)
	assert.True(t, ok)
	assert.Equal(t, "Electronics", v)
}
