// Package row implements EncodedValues: the packed byte layout for one
// logical row, produced from a types.Schema.
//
// Layout: a per-field validity bitmap, a static section of fixed-width
// slots (fixed types hold their value directly; dynamic types hold a
// (u32 offset, u32 length) pointer into the dynamic section), and a
// dynamic section holding variable-width payloads back to back in field
// order. All reads use unaligned loads; all writes mark the validity
// bit. Grounded on crates/core/src/encoded/{datetime,f32}.rs and
// crates/core/src/value/encoded/{blob,f32}.rs for the per-type slot
// shapes.
package row

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/reifydb/reifydb/pkg/encoding/keycode"
	"github.com/reifydb/reifydb/pkg/types"
)

// slot describes where one field's bits live.
type slot struct {
	field     types.Field
	offset    int // byte offset into the static section
	bitIndex  int // bit position in the validity bitmap
	isDynamic bool
}

// Layout is the precomputed (type, offset, dynamic) table for a schema.
// Layouts are cheap to build and safe to cache per schema.
type Layout struct {
	Schema      types.Schema
	Fingerprint types.Fingerprint
	slots       []slot
	bitmapBytes int
	staticBytes int
}

// NewLayout computes the bitmap and static-section byte widths for s and
// assigns every field a static slot.
func NewLayout(s types.Schema) *Layout {
	l := &Layout{Schema: s}
	l.bitmapBytes = (len(s.Fields) + 7) / 8
	offset := 0
	for i, f := range s.Fields {
		sl := slot{field: f, bitIndex: i}
		if f.Type.Fixed() {
			sl.offset = offset
			offset += f.Type.Width()
		} else {
			sl.isDynamic = true
			sl.offset = offset
			offset += 8 // (u32 offset, u32 length)
		}
		l.slots = append(l.slots, sl)
	}
	l.staticBytes = offset
	l.Fingerprint = fingerprint(s)
	return l
}

func fingerprint(s types.Schema) types.Fingerprint {
	// FNV-1a over the ordered (name, type) pairs. Deterministic across
	// processes, which is all the invariant in spec.md §4.1 requires.
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	mix := func(b byte) {
		h ^= uint64(b)
		h *= prime64
	}
	for _, f := range s.Fields {
		for i := 0; i < len(f.Name); i++ {
			mix(f.Name[i])
		}
		mix(0)
		mix(byte(f.Type))
	}
	return types.Fingerprint(h)
}

// EncodedValues is the packed byte representation of one row.
type EncodedValues struct {
	Bytes []byte
}

// Encoder builds an EncodedValues for a given Layout field by field.
type Encoder struct {
	layout  *Layout
	bitmap  []byte
	static  []byte
	dynamic []byte
}

func NewEncoder(l *Layout) *Encoder {
	return &Encoder{
		layout: l,
		bitmap: make([]byte, l.bitmapBytes),
		static: make([]byte, l.staticBytes),
	}
}

func (e *Encoder) markValid(bitIndex int) {
	e.bitmap[bitIndex/8] |= 1 << uint(bitIndex%8)
}

// Finish assembles the final byte string: fingerprint || bitmap || static || dynamic.
func (e *Encoder) Finish() *EncodedValues {
	out := make([]byte, 0, 8+len(e.bitmap)+len(e.static)+len(e.dynamic))
	var fp [8]byte
	binary.BigEndian.PutUint64(fp[:], uint64(e.layout.Fingerprint))
	out = append(out, fp[:]...)
	out = append(out, e.bitmap...)
	out = append(out, e.static...)
	out = append(out, e.dynamic...)
	return &EncodedValues{Bytes: out}
}

func (e *Encoder) slotFor(name string) (slot, error) {
	idx := e.layout.Schema.IndexOf(name)
	if idx < 0 {
		return slot{}, fmt.Errorf("row: no field %q in schema", name)
	}
	return e.layout.slots[idx], nil
}

// SetBool writes a boolean into its static slot and marks validity.
func (e *Encoder) SetBool(name string, v bool) error {
	sl, err := e.slotFor(name)
	if err != nil {
		return err
	}
	b := byte(0)
	if v {
		b = 1
	}
	e.static[sl.offset] = b
	e.markValid(sl.bitIndex)
	return nil
}

// SetInt writes a signed integer of the field's declared width.
func (e *Encoder) SetInt(name string, v int64) error {
	sl, err := e.slotFor(name)
	if err != nil {
		return err
	}
	putIntLE(e.static[sl.offset:sl.offset+sl.field.Type.Width()], v)
	e.markValid(sl.bitIndex)
	return nil
}

// SetUint writes an unsigned integer of the field's declared width.
func (e *Encoder) SetUint(name string, v uint64) error {
	sl, err := e.slotFor(name)
	if err != nil {
		return err
	}
	putUintLE(e.static[sl.offset:sl.offset+sl.field.Type.Width()], v)
	e.markValid(sl.bitIndex)
	return nil
}

// SetFloat writes a float4 or float8 depending on the field's type.
func (e *Encoder) SetFloat(name string, v float64) error {
	sl, err := e.slotFor(name)
	if err != nil {
		return err
	}
	switch sl.field.Type {
	case types.Float4:
		binary.LittleEndian.PutUint32(e.static[sl.offset:sl.offset+4], math.Float32bits(float32(v)))
	case types.Float8:
		binary.LittleEndian.PutUint64(e.static[sl.offset:sl.offset+8], math.Float64bits(v))
	default:
		return fmt.Errorf("row: field %q is not a float type", name)
	}
	e.markValid(sl.bitIndex)
	return nil
}

// SetDateTime writes the (i64 seconds, u32 nanos) temporal pair.
func (e *Encoder) SetDateTime(name string, seconds int64, nanos uint32) error {
	sl, err := e.slotFor(name)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(e.static[sl.offset:sl.offset+8], uint64(seconds))
	binary.LittleEndian.PutUint32(e.static[sl.offset+8:sl.offset+12], nanos)
	e.markValid(sl.bitIndex)
	return nil
}

// SetInt128 writes a 128-bit signed integer into its static slot, for
// Int16 fields. Reuses keycode's two's-complement encoding so the stored
// bytes are already order-preserving if ever compared directly.
func (e *Encoder) SetInt128(name string, v *big.Int) error {
	sl, err := e.slotFor(name)
	if err != nil {
		return err
	}
	buf := keycode.EncodeInt128(nil, v, keycode.Ascending)
	copy(e.static[sl.offset:sl.offset+16], buf)
	e.markValid(sl.bitIndex)
	return nil
}

// SetUint128 writes a 128-bit unsigned integer into its static slot, for
// Uint16 fields.
func (e *Encoder) SetUint128(name string, v *big.Int) error {
	sl, err := e.slotFor(name)
	if err != nil {
		return err
	}
	buf := keycode.EncodeUint128(nil, v, keycode.Ascending)
	copy(e.static[sl.offset:sl.offset+16], buf)
	e.markValid(sl.bitIndex)
	return nil
}

// SetUuid writes a 16-byte UUID verbatim into its static slot, for
// Uuid4/Uuid7 fields.
func (e *Encoder) SetUuid(name string, v [16]byte) error {
	sl, err := e.slotFor(name)
	if err != nil {
		return err
	}
	copy(e.static[sl.offset:sl.offset+16], v[:])
	e.markValid(sl.bitIndex)
	return nil
}

// SetDate writes the epoch-seconds-at-midnight representation of a Date
// field.
func (e *Encoder) SetDate(name string, seconds int64) error {
	sl, err := e.slotFor(name)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(e.static[sl.offset:sl.offset+8], uint64(seconds))
	e.markValid(sl.bitIndex)
	return nil
}

// SetTime writes the nanoseconds-since-midnight representation of a Time
// field.
func (e *Encoder) SetTime(name string, nanos int64) error {
	sl, err := e.slotFor(name)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(e.static[sl.offset:sl.offset+8], uint64(nanos))
	e.markValid(sl.bitIndex)
	return nil
}

// SetInterval writes the (i64 seconds, u32 nanos, i32 months) triple of
// an Interval field.
func (e *Encoder) SetInterval(name string, seconds int64, nanos uint32, months int32) error {
	sl, err := e.slotFor(name)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(e.static[sl.offset:sl.offset+8], uint64(seconds))
	binary.LittleEndian.PutUint32(e.static[sl.offset+8:sl.offset+12], nanos)
	binary.LittleEndian.PutUint32(e.static[sl.offset+12:sl.offset+16], uint32(months))
	e.markValid(sl.bitIndex)
	return nil
}

// SetBytes appends v to the dynamic section and records (offset, length)
// in the field's static slot. Used for both Utf8 and Blob fields.
func (e *Encoder) SetBytes(name string, v []byte) error {
	sl, err := e.slotFor(name)
	if err != nil {
		return err
	}
	if !sl.isDynamic {
		return fmt.Errorf("row: field %q is not a dynamic type", name)
	}
	offset := uint32(len(e.dynamic))
	length := uint32(len(v))
	binary.LittleEndian.PutUint32(e.static[sl.offset:sl.offset+4], offset)
	binary.LittleEndian.PutUint32(e.static[sl.offset+4:sl.offset+8], length)
	e.dynamic = append(e.dynamic, v...)
	e.markValid(sl.bitIndex)
	return nil
}

func (e *Encoder) SetString(name string, v string) error { return e.SetBytes(name, []byte(v)) }

func putIntLE(dst []byte, v int64) {
	u := uint64(v)
	for i := range dst {
		dst[i] = byte(u >> (8 * uint(i)))
	}
}

func putUintLE(dst []byte, v uint64) {
	for i := range dst {
		dst[i] = byte(v >> (8 * uint(i)))
	}
}

// Decoder reads fields out of an EncodedValues bound to a Layout.
type Decoder struct {
	layout *Layout
	ev     *EncodedValues
}

func NewDecoder(l *Layout, ev *EncodedValues) *Decoder { return &Decoder{layout: l, ev: ev} }

// Fingerprint returns the fingerprint stamped at the head of the bytes,
// so callers can detect a schema mismatch before decoding further.
func (ev *EncodedValues) Fingerprint() types.Fingerprint {
	return types.Fingerprint(binary.BigEndian.Uint64(ev.Bytes[:8]))
}

func (d *Decoder) bitmap() []byte {
	return d.ev.Bytes[8 : 8+d.layout.bitmapBytes]
}

func (d *Decoder) static() []byte {
	start := 8 + d.layout.bitmapBytes
	return d.ev.Bytes[start : start+d.layout.staticBytes]
}

func (d *Decoder) dynamic() []byte {
	start := 8 + d.layout.bitmapBytes + d.layout.staticBytes
	return d.ev.Bytes[start:]
}

func (d *Decoder) isValid(bitIndex int) bool {
	b := d.bitmap()
	return b[bitIndex/8]&(1<<uint(bitIndex%8)) != 0
}

func (d *Decoder) slotFor(name string) (slot, error) {
	idx := d.layout.Schema.IndexOf(name)
	if idx < 0 {
		return slot{}, fmt.Errorf("row: no field %q in schema", name)
	}
	return d.layout.slots[idx], nil
}

// TryGetBool returns (value, true) if defined, or (false, false) if the
// field's validity bit is unset.
func (d *Decoder) TryGetBool(name string) (bool, bool, error) {
	sl, err := d.slotFor(name)
	if err != nil {
		return false, false, err
	}
	if !d.isValid(sl.bitIndex) {
		return false, false, nil
	}
	return d.static()[sl.offset] != 0, true, nil
}

func (d *Decoder) TryGetInt(name string) (int64, bool, error) {
	sl, err := d.slotFor(name)
	if err != nil {
		return 0, false, err
	}
	if !d.isValid(sl.bitIndex) {
		return 0, false, nil
	}
	w := sl.field.Type.Width()
	return getIntLE(d.static()[sl.offset:sl.offset+w]), true, nil
}

func (d *Decoder) TryGetUint(name string) (uint64, bool, error) {
	sl, err := d.slotFor(name)
	if err != nil {
		return 0, false, err
	}
	if !d.isValid(sl.bitIndex) {
		return 0, false, nil
	}
	w := sl.field.Type.Width()
	return getUintLE(d.static()[sl.offset : sl.offset+w]), true, nil
}

func (d *Decoder) TryGetFloat(name string) (float64, bool, error) {
	sl, err := d.slotFor(name)
	if err != nil {
		return 0, false, err
	}
	if !d.isValid(sl.bitIndex) {
		return 0, false, nil
	}
	switch sl.field.Type {
	case types.Float4:
		bits := binary.LittleEndian.Uint32(d.static()[sl.offset : sl.offset+4])
		return float64(math.Float32frombits(bits)), true, nil
	case types.Float8:
		bits := binary.LittleEndian.Uint64(d.static()[sl.offset : sl.offset+8])
		return math.Float64frombits(bits), true, nil
	default:
		return 0, false, fmt.Errorf("row: field %q is not a float type", name)
	}
}

func (d *Decoder) TryGetDateTime(name string) (int64, uint32, bool, error) {
	sl, err := d.slotFor(name)
	if err != nil {
		return 0, 0, false, err
	}
	if !d.isValid(sl.bitIndex) {
		return 0, 0, false, nil
	}
	s := d.static()
	seconds := int64(binary.LittleEndian.Uint64(s[sl.offset : sl.offset+8]))
	nanos := binary.LittleEndian.Uint32(s[sl.offset+8 : sl.offset+12])
	return seconds, nanos, true, nil
}

func (d *Decoder) TryGetInt128(name string) (*big.Int, bool, error) {
	sl, err := d.slotFor(name)
	if err != nil {
		return nil, false, err
	}
	if !d.isValid(sl.bitIndex) {
		return nil, false, nil
	}
	v, _, err := keycode.DecodeInt128(d.static()[sl.offset:sl.offset+16], keycode.Ascending)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (d *Decoder) TryGetUint128(name string) (*big.Int, bool, error) {
	sl, err := d.slotFor(name)
	if err != nil {
		return nil, false, err
	}
	if !d.isValid(sl.bitIndex) {
		return nil, false, nil
	}
	v, _, err := keycode.DecodeUint128(d.static()[sl.offset:sl.offset+16], keycode.Ascending)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (d *Decoder) TryGetUuid(name string) ([16]byte, bool, error) {
	sl, err := d.slotFor(name)
	if err != nil {
		return [16]byte{}, false, err
	}
	if !d.isValid(sl.bitIndex) {
		return [16]byte{}, false, nil
	}
	var out [16]byte
	copy(out[:], d.static()[sl.offset:sl.offset+16])
	return out, true, nil
}

func (d *Decoder) TryGetDate(name string) (int64, bool, error) {
	sl, err := d.slotFor(name)
	if err != nil {
		return 0, false, err
	}
	if !d.isValid(sl.bitIndex) {
		return 0, false, nil
	}
	return int64(binary.LittleEndian.Uint64(d.static()[sl.offset : sl.offset+8])), true, nil
}

func (d *Decoder) TryGetTime(name string) (int64, bool, error) {
	sl, err := d.slotFor(name)
	if err != nil {
		return 0, false, err
	}
	if !d.isValid(sl.bitIndex) {
		return 0, false, nil
	}
	return int64(binary.LittleEndian.Uint64(d.static()[sl.offset : sl.offset+8])), true, nil
}

func (d *Decoder) TryGetInterval(name string) (int64, uint32, int32, bool, error) {
	sl, err := d.slotFor(name)
	if err != nil {
		return 0, 0, 0, false, err
	}
	if !d.isValid(sl.bitIndex) {
		return 0, 0, 0, false, nil
	}
	s := d.static()
	seconds := int64(binary.LittleEndian.Uint64(s[sl.offset : sl.offset+8]))
	nanos := binary.LittleEndian.Uint32(s[sl.offset+8 : sl.offset+12])
	months := int32(binary.LittleEndian.Uint32(s[sl.offset+12 : sl.offset+16]))
	return seconds, nanos, months, true, nil
}

func (d *Decoder) TryGetBytes(name string) ([]byte, bool, error) {
	sl, err := d.slotFor(name)
	if err != nil {
		return nil, false, err
	}
	if !sl.isDynamic {
		return nil, false, fmt.Errorf("row: field %q is not a dynamic type", name)
	}
	if !d.isValid(sl.bitIndex) {
		return nil, false, nil
	}
	s := d.static()
	offset := binary.LittleEndian.Uint32(s[sl.offset : sl.offset+4])
	length := binary.LittleEndian.Uint32(s[sl.offset+4 : sl.offset+8])
	dyn := d.dynamic()
	return dyn[offset : offset+length], true, nil
}

func (d *Decoder) TryGetString(name string) (string, bool, error) {
	b, ok, err := d.TryGetBytes(name)
	if err != nil || !ok {
		return "", ok, err
	}
	return string(b), true, nil
}

func getIntLE(src []byte) int64 {
	u := getUintLE(src)
	bits := uint(len(src) * 8)
	shift := 64 - bits
	return int64(u<<shift) >> shift
}

func getUintLE(src []byte) uint64 {
	var u uint64
	for i := len(src) - 1; i >= 0; i-- {
		u = u<<8 | uint64(src[i])
	}
	return u
}

// ToRow fully decodes ev against l into a types.Row, honoring undefined
// (validity-unset) fields as zero-valued, non-Defined types.Value.
func ToRow(l *Layout, ev *EncodedValues) (types.Row, error) {
	d := NewDecoder(l, ev)
	values := make([]types.Value, len(l.Schema.Fields))
	for i, f := range l.Schema.Fields {
		v, err := decodeValue(d, f)
		if err != nil {
			return types.Row{}, err
		}
		values[i] = v
	}
	return types.Row{Schema: l.Schema, Values: values}, nil
}

func decodeValue(d *Decoder, f types.Field) (types.Value, error) {
	switch f.Type {
	case types.Bool:
		v, ok, err := d.TryGetBool(f.Name)
		if err != nil {
			return types.Value{}, err
		}
		if !ok {
			return types.Undef(f.Type), nil
		}
		return types.BoolVal(v), nil
	case types.Int1, types.Int2, types.Int4, types.Int8:
		v, ok, err := d.TryGetInt(f.Name)
		if err != nil {
			return types.Value{}, err
		}
		if !ok {
			return types.Undef(f.Type), nil
		}
		return types.Value{Type: f.Type, Defined: true, I64: v}, nil
	case types.Uint1, types.Uint2, types.Uint4, types.Uint8:
		v, ok, err := d.TryGetUint(f.Name)
		if err != nil {
			return types.Value{}, err
		}
		if !ok {
			return types.Undef(f.Type), nil
		}
		return types.Value{Type: f.Type, Defined: true, U64: v}, nil
	case types.Float4, types.Float8:
		v, ok, err := d.TryGetFloat(f.Name)
		if err != nil {
			return types.Value{}, err
		}
		if !ok {
			return types.Undef(f.Type), nil
		}
		return types.Value{Type: f.Type, Defined: true, F64: v}, nil
	case types.Utf8:
		v, ok, err := d.TryGetString(f.Name)
		if err != nil {
			return types.Value{}, err
		}
		if !ok {
			return types.Undef(f.Type), nil
		}
		return types.Utf8Val(v), nil
	case types.Blob:
		v, ok, err := d.TryGetBytes(f.Name)
		if err != nil {
			return types.Value{}, err
		}
		if !ok {
			return types.Undef(f.Type), nil
		}
		return types.BlobVal(v), nil
	case types.DateTime:
		s, n, ok, err := d.TryGetDateTime(f.Name)
		if err != nil {
			return types.Value{}, err
		}
		if !ok {
			return types.Undef(f.Type), nil
		}
		return types.Value{Type: f.Type, Defined: true, Seconds: s, Nanos: n}, nil
	case types.Int16:
		v, ok, err := d.TryGetInt128(f.Name)
		if err != nil {
			return types.Value{}, err
		}
		if !ok {
			return types.Undef(f.Type), nil
		}
		return types.Value{Type: f.Type, Defined: true, I128: v}, nil
	case types.Uint16:
		v, ok, err := d.TryGetUint128(f.Name)
		if err != nil {
			return types.Value{}, err
		}
		if !ok {
			return types.Undef(f.Type), nil
		}
		return types.Value{Type: f.Type, Defined: true, U128: v}, nil
	case types.Uuid4, types.Uuid7:
		v, ok, err := d.TryGetUuid(f.Name)
		if err != nil {
			return types.Value{}, err
		}
		if !ok {
			return types.Undef(f.Type), nil
		}
		b := make([]byte, 16)
		copy(b, v[:])
		return types.Value{Type: f.Type, Defined: true, Bytes: b}, nil
	case types.Date:
		v, ok, err := d.TryGetDate(f.Name)
		if err != nil {
			return types.Value{}, err
		}
		if !ok {
			return types.Undef(f.Type), nil
		}
		return types.Value{Type: f.Type, Defined: true, Seconds: v}, nil
	case types.Time:
		v, ok, err := d.TryGetTime(f.Name)
		if err != nil {
			return types.Value{}, err
		}
		if !ok {
			return types.Undef(f.Type), nil
		}
		return types.Value{Type: f.Type, Defined: true, Seconds: v}, nil
	case types.Interval:
		s, n, m, ok, err := d.TryGetInterval(f.Name)
		if err != nil {
			return types.Value{}, err
		}
		if !ok {
			return types.Undef(f.Type), nil
		}
		return types.Value{Type: f.Type, Defined: true, Seconds: s, Nanos: n, Months: m}, nil
	default:
		return types.Value{}, fmt.Errorf("row: unsupported field type %s", f.Type)
	}
}

// FromRow encodes r against l, field by field, skipping undefined
// values (their validity bit is simply left unset).
func FromRow(l *Layout, r types.Row) (*EncodedValues, error) {
	enc := NewEncoder(l)
	for i, f := range l.Schema.Fields {
		v := r.Values[i]
		if !v.Defined {
			continue
		}
		if err := encodeValue(enc, f, v); err != nil {
			return nil, err
		}
	}
	return enc.Finish(), nil
}

func encodeValue(enc *Encoder, f types.Field, v types.Value) error {
	switch f.Type {
	case types.Bool:
		return enc.SetBool(f.Name, v.Bool)
	case types.Int1, types.Int2, types.Int4, types.Int8:
		return enc.SetInt(f.Name, v.I64)
	case types.Uint1, types.Uint2, types.Uint4, types.Uint8:
		return enc.SetUint(f.Name, v.U64)
	case types.Float4, types.Float8:
		return enc.SetFloat(f.Name, v.F64)
	case types.Utf8:
		return enc.SetString(f.Name, v.Str)
	case types.Blob:
		return enc.SetBytes(f.Name, v.Bytes)
	case types.DateTime:
		return enc.SetDateTime(f.Name, v.Seconds, v.Nanos)
	case types.Int16:
		return enc.SetInt128(f.Name, v.I128)
	case types.Uint16:
		return enc.SetUint128(f.Name, v.U128)
	case types.Uuid4, types.Uuid7:
		var b [16]byte
		copy(b[:], v.Bytes)
		return enc.SetUuid(f.Name, b)
	case types.Date:
		return enc.SetDate(f.Name, v.Seconds)
	case types.Time:
		return enc.SetTime(f.Name, v.Seconds)
	case types.Interval:
		return enc.SetInterval(f.Name, v.Seconds, v.Nanos, v.Months)
	default:
		return fmt.Errorf("row: unsupported field type %s", f.Type)
	}
}
