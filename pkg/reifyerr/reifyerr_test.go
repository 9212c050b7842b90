package reifyerr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reifydb/reifydb/pkg/reifyerr"
)

func TestKindStringsAreStable(t *testing.T) {
	assert.Equal(t, "Conflict", reifyerr.KindConflict.String())
	assert.Equal(t, "StorageIo", reifyerr.KindStorageIo.String())
	assert.Equal(t, "Cancelled", reifyerr.KindCancelled.String())
}

func TestIsMatchesByKindNotMessage(t *testing.T) {
	err := reifyerr.Conflict("key %q overlaps", "a")
	assert.True(t, reifyerr.Is(err, reifyerr.KindConflict))
	assert.False(t, reifyerr.Is(err, reifyerr.KindStorageIo))
}

func TestWrapPreservesCauseChain(t *testing.T) {
	cause := errors.New("disk full")
	err := reifyerr.StorageIo(cause, "write failed")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestFlowErrorCarriesChainContext(t *testing.T) {
	err := reifyerr.Flow("op-3", "node-7", 42, "invariant violated")
	require.Equal(t, reifyerr.KindFlow, err.Kind)
	assert.Equal(t, "op-3", err.OperatorId)
	assert.Equal(t, "node-7", err.NodeId)
	assert.Equal(t, uint64(42), err.Version)
}

func TestKindOfReturnsUnknownForPlainErrors(t *testing.T) {
	assert.Equal(t, reifyerr.KindUnknown, reifyerr.KindOf(fmt.Errorf("plain")))
}

func TestInternalCarriesLocation(t *testing.T) {
	err := reifyerr.Internal(reifyerr.Location{File: "store.go", Function: "Commit", Line: 42}, "unreachable")
	require.NotNil(t, err.Location)
	assert.Equal(t, 42, err.Location.Line)
}
