package row

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reifydb/reifydb/pkg/types"
)

func testSchema() types.Schema {
	return types.Schema{Fields: []types.Field{
		{Name: "id", Type: types.Int8},
		{Name: "active", Type: types.Bool},
		{Name: "score", Type: types.Float8},
		{Name: "name", Type: types.Utf8},
		{Name: "payload", Type: types.Blob},
	}}
}

func TestRoundTripAllFields(t *testing.T) {
	l := NewLayout(testSchema())
	enc := NewEncoder(l)
	require.NoError(t, enc.SetInt("id", 42))
	require.NoError(t, enc.SetBool("active", true))
	require.NoError(t, enc.SetFloat("score", 3.5))
	require.NoError(t, enc.SetString("name", "alice"))
	require.NoError(t, enc.SetBytes("payload", []byte{1, 2, 3}))
	ev := enc.Finish()

	dec := NewDecoder(l, ev)
	id, ok, err := dec.TryGetInt("id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	active, ok, err := dec.TryGetBool("active")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, active)

	score, ok, err := dec.TryGetFloat("score")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3.5, score)

	name, ok, err := dec.TryGetString("name")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice", name)

	payload, ok, err := dec.TryGetBytes("payload")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, payload)
}

func TestUndefinedFieldIsNotValid(t *testing.T) {
	l := NewLayout(testSchema())
	enc := NewEncoder(l)
	require.NoError(t, enc.SetInt("id", 1))
	ev := enc.Finish()

	dec := NewDecoder(l, ev)
	_, ok, err := dec.TryGetBool("active")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFingerprintStableAcrossInstances(t *testing.T) {
	l1 := NewLayout(testSchema())
	l2 := NewLayout(testSchema())
	assert.Equal(t, l1.Fingerprint, l2.Fingerprint)

	other := NewLayout(types.Schema{Fields: []types.Field{{Name: "id", Type: types.Int8}}})
	assert.NotEqual(t, l1.Fingerprint, other.Fingerprint)
}

func TestFromRowToRowRoundTrip(t *testing.T) {
	l := NewLayout(testSchema())
	r := types.Row{
		Schema: l.Schema,
		Values: []types.Value{
			types.Int8Val(7),
			types.BoolVal(false),
			types.Undef(types.Float8),
			types.Utf8Val("bob"),
			types.Undef(types.Blob),
		},
	}
	ev, err := FromRow(l, r)
	require.NoError(t, err)

	got, err := ToRow(l, ev)
	require.NoError(t, err)
	require.Len(t, got.Values, 5)
	assert.Equal(t, int64(7), got.Values[0].I64)
	assert.True(t, got.Values[0].Defined)
	assert.False(t, got.Values[1].Bool)
	assert.False(t, got.Values[2].Defined)
	assert.Equal(t, "bob", got.Values[3].Str)
	assert.False(t, got.Values[4].Defined)
}

func extendedSchema() types.Schema {
	return types.Schema{Fields: []types.Field{
		{Name: "big", Type: types.Int16},
		{Name: "ubig", Type: types.Uint16},
		{Name: "id", Type: types.Uuid4},
		{Name: "id7", Type: types.Uuid7},
		{Name: "d", Type: types.Date},
		{Name: "t", Type: types.Time},
		{Name: "i", Type: types.Interval},
	}}
}

func TestRoundTripInt128(t *testing.T) {
	l := NewLayout(extendedSchema())
	enc := NewEncoder(l)
	want := new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 100))
	require.NoError(t, enc.SetInt128("big", want))
	ev := enc.Finish()

	dec := NewDecoder(l, ev)
	got, ok, err := dec.TryGetInt128("big")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, want.Cmp(got))
}

func TestRoundTripUint128(t *testing.T) {
	l := NewLayout(extendedSchema())
	enc := NewEncoder(l)
	want := new(big.Int).Lsh(big.NewInt(1), 100)
	require.NoError(t, enc.SetUint128("ubig", want))
	ev := enc.Finish()

	dec := NewDecoder(l, ev)
	got, ok, err := dec.TryGetUint128("ubig")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, want.Cmp(got))
}

func TestRoundTripUuid(t *testing.T) {
	l := NewLayout(extendedSchema())
	enc := NewEncoder(l)
	var id4, id7 [16]byte
	for i := range id4 {
		id4[i] = byte(i)
		id7[i] = byte(16 - i)
	}
	require.NoError(t, enc.SetUuid("id", id4))
	require.NoError(t, enc.SetUuid("id7", id7))
	ev := enc.Finish()

	dec := NewDecoder(l, ev)
	gotID4, ok, err := dec.TryGetUuid("id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id4, gotID4)

	gotID7, ok, err := dec.TryGetUuid("id7")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id7, gotID7)
}

func TestRoundTripDateTimeInterval(t *testing.T) {
	l := NewLayout(extendedSchema())
	enc := NewEncoder(l)
	require.NoError(t, enc.SetDate("d", 1_700_000_000))
	require.NoError(t, enc.SetTime("t", 43_200_000_000_000))
	require.NoError(t, enc.SetInterval("i", 90_000, 500, -3))
	ev := enc.Finish()

	dec := NewDecoder(l, ev)
	d, ok, err := dec.TryGetDate("d")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1_700_000_000), d)

	tm, ok, err := dec.TryGetTime("t")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(43_200_000_000_000), tm)

	s, n, m, ok, err := dec.TryGetInterval("i")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(90_000), s)
	assert.Equal(t, uint32(500), n)
	assert.Equal(t, int32(-3), m)
}

func TestFromRowToRowRoundTripExtendedTypes(t *testing.T) {
	l := NewLayout(extendedSchema())
	r := types.Row{
		Schema: l.Schema,
		Values: []types.Value{
			types.Int16Val(big.NewInt(-12345)),
			types.Uint16Val(big.NewInt(12345)),
			types.Uuid4Val(make([]byte, 16)),
			types.Uuid7Val(make([]byte, 16)),
			types.DateVal(1_600_000_000),
			types.TimeVal(1_000_000),
			types.IntervalVal(60, 0, 1),
		},
	}
	ev, err := FromRow(l, r)
	require.NoError(t, err)

	got, err := ToRow(l, ev)
	require.NoError(t, err)
	require.Len(t, got.Values, 7)
	assert.Equal(t, 0, big.NewInt(-12345).Cmp(got.Values[0].I128))
	assert.Equal(t, 0, big.NewInt(12345).Cmp(got.Values[1].U128))
	assert.Equal(t, int64(1_600_000_000), got.Values[4].Seconds)
	assert.Equal(t, int64(1_000_000), got.Values[5].Seconds)
	assert.Equal(t, int32(1), got.Values[6].Months)
}

func TestDynamicFieldsAppendInOrder(t *testing.T) {
	schema := types.Schema{Fields: []types.Field{
		{Name: "a", Type: types.Utf8},
		{Name: "b", Type: types.Utf8},
	}}
	l := NewLayout(schema)
	enc := NewEncoder(l)
	require.NoError(t, enc.SetString("a", "first"))
	require.NoError(t, enc.SetString("b", "second"))
	ev := enc.Finish()

	dec := NewDecoder(l, ev)
	a, _, err := dec.TryGetString("a")
	require.NoError(t, err)
	b, _, err := dec.TryGetString("b")
	require.NoError(t, err)
	assert.Equal(t, "first", a)
	assert.Equal(t, "second", b)
}
