package engine

import (
	"math"

	"github.com/reifydb/reifydb/pkg/reifyerr"
	"github.com/reifydb/reifydb/pkg/types"
)

// SaturationPolicy decides what an out-of-range arithmetic result
// becomes: a Type error or a silently Undefined value (spec.md §4.6
// "column saturation policy").
type SaturationPolicy int

const (
	SaturationError SaturationPolicy = iota
	SaturationUndefined
)

// promote returns the common widest type two operand types must be
// converted to before an arithmetic op runs, following the usual
// integer/float promotion ladder: wider wins, float wins over int of
// equal or lesser width, unsigned stays unsigned only if both operands
// are unsigned.
func promote(a, b types.Type) types.Type {
	rank := func(t types.Type) int {
		switch t {
		case types.Int1, types.Uint1:
			return 1
		case types.Int2, types.Uint2:
			return 2
		case types.Int4, types.Uint4, types.Float4:
			return 3
		case types.Int8, types.Uint8, types.Float8:
			return 4
		case types.Int16, types.Uint16:
			return 5
		default:
			return 0
		}
	}
	isFloat := func(t types.Type) bool { return t == types.Float4 || t == types.Float8 }
	if isFloat(a) || isFloat(b) {
		if rank(a) >= 4 || rank(b) >= 4 {
			return types.Float8
		}
		return types.Float4
	}
	isUnsigned := func(t types.Type) bool {
		switch t {
		case types.Uint1, types.Uint2, types.Uint4, types.Uint8, types.Uint16:
			return true
		default:
			return false
		}
	}
	ra, rb := rank(a), rank(b)
	wide := a
	if rb > ra || (rb == ra && isUnsigned(b) && !isUnsigned(a)) {
		wide = b
	}
	if !isUnsigned(a) || !isUnsigned(b) {
		switch wide {
		case types.Uint1:
			return types.Int2
		case types.Uint2:
			return types.Int4
		case types.Uint4:
			return types.Int8
		case types.Uint8, types.Uint16:
			return types.Int16
		}
	}
	return wide
}

// ArithOp names the binary arithmetic operations operators evaluate.
type ArithOp int

const (
	Add ArithOp = iota
	Sub
	Mul
	Div
	Rem
)

// Arith evaluates op over two values, promoting both to their common
// widest type, delegating to a checked operation, and applying policy
// on overflow or division/remainder by zero (spec.md §4.6 "Numeric
// arithmetic"). An undefined operand yields an undefined result.
//
// Grounded on crates/reifydb-type/src/value/number/safe/mul.rs (checked/
// saturating/wrapping variants) and crates/engine/src/evaluate/arith.rs
// (promote-then-dispatch shape).
func Arith(op ArithOp, a, b types.Value, policy SaturationPolicy) (types.Value, error) {
	if !a.Defined || !b.Defined {
		return types.Undef(promote(a.Type, b.Type)), nil
	}
	target := promote(a.Type, b.Type)
	if target == types.Float4 || target == types.Float8 {
		if (op == Div || op == Rem) && asF64(b) == 0 {
			if policy == SaturationError {
				return types.Value{}, reifyerr.TypeError("division by zero")
			}
			return types.Undef(target), nil
		}
		return arithFloat(op, a, b, target)
	}
	return arithInt(op, a, b, target, policy)
}

// AsF64 exposes the value-to-float64 conversion every aggregate uses,
// so pkg/flow's incrementally maintained aggregates apply the same
// numeric treatment as pkg/engine's batch Aggregate.
func AsF64(v types.Value) float64 { return asF64(v) }

func asF64(v types.Value) float64 {
	if v.Type == types.Float4 || v.Type == types.Float8 {
		return v.F64
	}
	if isUnsignedType(v.Type) {
		return float64(v.U64)
	}
	return float64(v.I64)
}

func isUnsignedType(t types.Type) bool {
	switch t {
	case types.Uint1, types.Uint2, types.Uint4, types.Uint8, types.Uint16:
		return true
	default:
		return false
	}
}

func arithFloat(op ArithOp, a, b types.Value, target types.Type) (types.Value, error) {
	x, y := asF64(a), asF64(b)
	var r float64
	switch op {
	case Add:
		r = x + y
	case Sub:
		r = x - y
	case Mul:
		r = x * y
	case Div:
		if y == 0 {
			r = math.NaN()
		} else {
			r = x / y
		}
	case Rem:
		r = math.Mod(x, y)
	}
	return types.Value{Type: target, Defined: true, F64: r}, nil
}

func asI64(v types.Value) int64 {
	if isUnsignedType(v.Type) {
		return int64(v.U64)
	}
	return v.I64
}

func arithInt(op ArithOp, a, b types.Value, target types.Type, policy SaturationPolicy) (types.Value, error) {
	x, y := asI64(a), asI64(b)
	if (op == Div || op == Rem) && y == 0 {
		if policy == SaturationError {
			return types.Value{}, reifyerr.TypeError("division by zero")
		}
		return types.Undef(target), nil
	}

	var r int64
	var overflow bool
	switch op {
	case Add:
		r = x + y
		overflow = (y > 0 && r < x) || (y < 0 && r > x)
	case Sub:
		r = x - y
		overflow = (y < 0 && r < x) || (y > 0 && r > x)
	case Mul:
		r = x * y
		overflow = x != 0 && r/x != y
	case Div:
		r = x / y
		overflow = x == math.MinInt64 && y == -1
	case Rem:
		r = x % y
	}

	if !overflow && !outOfRange(r, target) {
		return makeValue(target, r), nil
	}
	if policy == SaturationError {
		return types.Value{}, reifyerr.TypeError("arithmetic overflow for %s", target)
	}
	return types.Undef(target), nil
}

func outOfRange(r int64, t types.Type) bool {
	switch t {
	case types.Int1:
		return r < math.MinInt8 || r > math.MaxInt8
	case types.Int2:
		return r < math.MinInt16 || r > math.MaxInt16
	case types.Int4:
		return r < math.MinInt32 || r > math.MaxInt32
	case types.Uint1:
		return r < 0 || r > math.MaxUint8
	case types.Uint2:
		return r < 0 || r > math.MaxUint16
	case types.Uint4:
		return r < 0 || r > math.MaxUint32
	default:
		return false
	}
}

func makeValue(t types.Type, r int64) types.Value {
	if isUnsignedType(t) {
		return types.Value{Type: t, Defined: true, U64: uint64(r)}
	}
	return types.Value{Type: t, Defined: true, I64: r}
}
