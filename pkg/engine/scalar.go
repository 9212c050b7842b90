package engine

import "github.com/reifydb/reifydb/pkg/types"

// LogicalOp names the boolean operators Filter/Map predicates evaluate
// over Bool values (spec.md §8 scenario 2: and/or/not/xor on literals).
type LogicalOp int

const (
	And LogicalOp = iota
	Or
	Not
	Xor
)

// Logical evaluates op over one or two Bool values, following SQL's
// three-valued logic: an undefined operand makes the result undefined
// unless the other operand alone already determines it (true or
// undefined, false and undefined).
//
// Grounded on the EvalContext method shape of
// crates/engine/src/expression/scalar.rs (one small method per scalar
// operator, dispatched by the caller rather than by a big switch) and
// the promote-then-dispatch pattern of Arith in this package.
func Logical(op LogicalOp, a, b types.Value) types.Value {
	switch op {
	case Not:
		if !a.Defined {
			return types.Undef(types.Bool)
		}
		return types.BoolVal(!a.Bool)
	case And:
		if a.Defined && !a.Bool {
			return types.BoolVal(false)
		}
		if b.Defined && !b.Bool {
			return types.BoolVal(false)
		}
		if !a.Defined || !b.Defined {
			return types.Undef(types.Bool)
		}
		return types.BoolVal(true)
	case Or:
		if a.Defined && a.Bool {
			return types.BoolVal(true)
		}
		if b.Defined && b.Bool {
			return types.BoolVal(true)
		}
		if !a.Defined || !b.Defined {
			return types.Undef(types.Bool)
		}
		return types.BoolVal(false)
	case Xor:
		if !a.Defined || !b.Defined {
			return types.Undef(types.Bool)
		}
		return types.BoolVal(a.Bool != b.Bool)
	default:
		return types.Undef(types.Bool)
	}
}

// LogicalPredicate builds a Predicate that collapses a Logical result to
// a filter decision: undefined and false both drop the row, matching
// Predicate's documented three-valued-to-filter collapse.
func LogicalPredicate(fn func(r types.Row) types.Value) Predicate {
	return func(r types.Row) bool {
		v := fn(r)
		return v.Defined && v.Bool
	}
}
