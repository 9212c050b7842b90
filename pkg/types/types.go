// Package types defines the value and schema domain shared by encoding,
// storage, the executor and the flow engine.
//
// A Type names a logical column kind. A Value wraps one concrete value of
// that kind and knows whether it is defined. A Schema is an ordered list
// of (name, Type) fields describing one row shape; it is the single
// source of truth consulted by pkg/encoding/row to compute field offsets.
package types

import (
	"fmt"
	"math/big"
	"time"
)

// Type enumerates every value kind the row and key codecs understand.
type Type uint8

const (
	Undefined Type = iota
	Bool
	Int1
	Int2
	Int4
	Int8
	Int16
	Uint1
	Uint2
	Uint4
	Uint8
	Uint16
	Float4
	Float8
	Utf8
	Blob
	Date
	DateTime
	Time
	Interval
	Uuid4
	Uuid7
)

// Fixed reports whether values of t occupy a statically known width in
// the static section of a row, as opposed to being stored by
// (offset, length) reference into the dynamic section.
func (t Type) Fixed() bool {
	switch t {
	case Utf8, Blob:
		return false
	default:
		return true
	}
}

// Width returns the static-section byte width for fixed-width types. It
// panics for dynamic types; callers must check Fixed first.
func (t Type) Width() int {
	switch t {
	case Bool, Int1, Uint1:
		return 1
	case Int2, Uint2:
		return 2
	case Int4, Uint4, Float4:
		return 4
	case Int8, Uint8, Float8, Time:
		return 8
	case Int16, Uint16, Uuid4, Uuid7:
		return 16
	case Date:
		return 8
	case DateTime:
		return 12 // (i64 seconds, u32 nanos)
	case Interval:
		return 16 // (i64 seconds, u32 nanos, i32 months), exact fit
	default:
		panic(fmt.Sprintf("types: Width called on dynamic type %s", t))
	}
}

func (t Type) String() string {
	switch t {
	case Undefined:
		return "undefined"
	case Bool:
		return "bool"
	case Int1:
		return "int1"
	case Int2:
		return "int2"
	case Int4:
		return "int4"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Uint1:
		return "uint1"
	case Uint2:
		return "uint2"
	case Uint4:
		return "uint4"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Float4:
		return "float4"
	case Float8:
		return "float8"
	case Utf8:
		return "utf8"
	case Blob:
		return "blob"
	case Date:
		return "date"
	case DateTime:
		return "datetime"
	case Time:
		return "time"
	case Interval:
		return "interval"
	case Uuid4:
		return "uuid4"
	case Uuid7:
		return "uuid7"
	default:
		return "unknown"
	}
}

// Field is one named, typed column in a Schema.
type Field struct {
	Name string
	Type Type
}

// Schema is an ordered field list. Field order determines row layout, so
// two schemas with identical fields in different order are distinct for
// encoding purposes (see pkg/encoding/row.Layout).
type Schema struct {
	Fields []Field
}

// IndexOf returns the ordinal of name, or -1 if absent.
func (s Schema) IndexOf(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Fingerprint is a compact, stable identifier of a row layout, letting a
// decoder presented with raw bytes pick the schema that produced them.
// It is recomputed from field (name, type) pairs, order-sensitive.
type Fingerprint uint64

// Value wraps a single cell. Defined is false for SQL-NULL-like absence;
// in that case the other fields are zero and must not be read.
type Value struct {
	Type    Type
	Defined bool

	Bool  bool
	I64   int64
	U64   uint64
	F64   float64
	Str   string
	Bytes []byte

	// I128/U128 hold Int16/Uint16, the 128-bit integer kinds. Defined
	// only for those two types.
	I128 *big.Int
	U128 *big.Int

	// Temporal fields. DateTime and Interval use all three; Date uses
	// Seconds alone (epoch seconds at UTC midnight); Time uses Seconds
	// alone (nanoseconds since midnight).
	Seconds int64
	Nanos   uint32
	Months  int32
}

// Undef returns an undefined value of the given type.
func Undef(t Type) Value { return Value{Type: t, Defined: false} }

func BoolVal(v bool) Value     { return Value{Type: Bool, Defined: true, Bool: v} }
func Int8Val(v int64) Value    { return Value{Type: Int8, Defined: true, I64: v} }
func Uint8Val(v uint64) Value  { return Value{Type: Uint8, Defined: true, U64: v} }
func Float8Val(v float64) Value { return Value{Type: Float8, Defined: true, F64: v} }
func Utf8Val(v string) Value   { return Value{Type: Utf8, Defined: true, Str: v} }
func BlobVal(v []byte) Value   { return Value{Type: Blob, Defined: true, Bytes: v} }

// Int16Val builds an Int16 (128-bit signed) value.
func Int16Val(v *big.Int) Value { return Value{Type: Int16, Defined: true, I128: v} }

// Uint16Val builds a Uint16 (128-bit unsigned) value.
func Uint16Val(v *big.Int) Value { return Value{Type: Uint16, Defined: true, U128: v} }

// Uuid4Val builds a Uuid4 value from its 16 raw bytes.
func Uuid4Val(v []byte) Value { return Value{Type: Uuid4, Defined: true, Bytes: v} }

// Uuid7Val builds a Uuid7 value from its 16 raw bytes.
func Uuid7Val(v []byte) Value { return Value{Type: Uuid7, Defined: true, Bytes: v} }

// DateVal builds a Date value from epoch seconds at UTC midnight.
func DateVal(seconds int64) Value { return Value{Type: Date, Defined: true, Seconds: seconds} }

// TimeVal builds a Time value from nanoseconds since midnight.
func TimeVal(nanos int64) Value { return Value{Type: Time, Defined: true, Seconds: nanos} }

// IntervalVal builds an Interval value from its (seconds, nanos, months) parts.
func IntervalVal(seconds int64, nanos uint32, months int32) Value {
	return Value{Type: Interval, Defined: true, Seconds: seconds, Nanos: nanos, Months: months}
}

// DateTimeVal builds a DateTime value from a time.Time, truncated to
// (seconds, nanos) the way the row codec stores it.
func DateTimeVal(t time.Time) Value {
	return Value{Type: DateTime, Defined: true, Seconds: t.Unix(), Nanos: uint32(t.Nanosecond())}
}

func (v Value) String() string {
	if !v.Defined {
		return "undefined"
	}
	switch v.Type {
	case Bool:
		return fmt.Sprintf("%v", v.Bool)
	case Int1, Int2, Int4, Int8:
		return fmt.Sprintf("%d", v.I64)
	case Int16:
		return v.I128.String()
	case Uint1, Uint2, Uint4, Uint8:
		return fmt.Sprintf("%d", v.U64)
	case Uint16:
		return v.U128.String()
	case Float4, Float8:
		return fmt.Sprintf("%v", v.F64)
	case Utf8:
		return v.Str
	case Blob:
		return fmt.Sprintf("blob(%d bytes)", len(v.Bytes))
	case Uuid4, Uuid7:
		return fmt.Sprintf("%x", v.Bytes)
	case Date, Time:
		return fmt.Sprintf("%s(%d)", v.Type, v.Seconds)
	case Interval:
		return fmt.Sprintf("interval(%d,%d,%d)", v.Seconds, v.Nanos, v.Months)
	default:
		return fmt.Sprintf("%s(%d,%d)", v.Type, v.Seconds, v.Nanos)
	}
}

// Row is a decoded, schema-bound tuple of values — the in-memory
// representation executor operators pass around before it is packed
// into EncodedValues for storage, or after it is unpacked for
// evaluation.
type Row struct {
	Schema Schema
	Values []Value
}

func (r Row) Get(name string) (Value, bool) {
	i := r.Schema.IndexOf(name)
	if i < 0 {
		return Value{}, false
	}
	return r.Values[i], true
}
