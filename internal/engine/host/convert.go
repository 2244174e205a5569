package host

import (
	"math"

	errs "hostscript/internal/core/errors"
)

// Score ranks how an argument converts to a parameter type. Lower is better.
type Score int

const (
	Incompatible Score = -1

	Identity Score = iota - 1
	Widening
	Boxing
	ReferenceWidening
	NullToReference
)

func (s Score) String() string {
	switch s {
	case Identity:
		return "identity"
	case Widening:
		return "widening"
	case Boxing:
		return "boxing"
	case ReferenceWidening:
		return "reference-widening"
	case NullToReference:
		return "null"
	default:
		return "incompatible"
	}
}

// Normalize maps Go values the embedding code may pass (int, uint8, rune slices
// aside) onto the canonical dynamic representations.
func Normalize(v Value) Value {
	switch x := v.(type) {
	case int:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return int32(x)
		}
		return int64(x)
	case uint8:
		return int16(x)
	case uint16:
		return Char(x)
	case uint32:
		return int64(x)
	default:
		return v
	}
}

// TypeOf returns the runtime type of v, or nil for null.
func TypeOf(v Value) *Type {
	switch x := Normalize(v).(type) {
	case nil:
		return nil
	case bool:
		return Boolean
	case int8:
		return Byte
	case Char:
		return CharType
	case int16:
		return Short
	case int32:
		return Int
	case int64:
		return Long
	case float32:
		return Float
	case float64:
		return Double
	case string:
		return StringClass
	case *Object:
		if x == nil {
			return nil
		}
		return x.Class
	default:
		return ObjectClass
	}
}

// Widens reports whether primitive from converts to primitive to by widening.
func Widens(from, to *Type) bool {
	if from == nil || to == nil || !from.IsPrimitive() || !to.IsPrimitive() || from == to {
		return false
	}
	if from == Boolean || to == Boolean || from == Void || to == Void {
		return false
	}
	if to == CharType {
		return false
	}
	if from == CharType {
		return to.rank >= Int.rank
	}
	return to.rank > from.rank
}

// ConversionScore classifies converting v to a parameter of type to.
func ConversionScore(v Value, to *Type) Score {
	v = Normalize(v)
	if v == nil {
		if to.IsPrimitive() {
			return Incompatible
		}
		return NullToReference
	}
	from := TypeOf(v)
	if from == to {
		return Identity
	}
	switch {
	case from.IsPrimitive() && to.IsPrimitive():
		if Widens(from, to) {
			return Widening
		}
	case from.IsPrimitive():
		box := BoxOf(from)
		if box == to {
			return Boxing
		}
		if box.AssignableTo(to) {
			return ReferenceWidening
		}
	case to.IsPrimitive():
		if prim := UnboxedOf(from); prim != nil && (prim == to || Widens(prim, to)) {
			return Boxing
		}
	default:
		if from.AssignableTo(to) {
			return ReferenceWidening
		}
	}
	return Incompatible
}

// Assignable reports whether v may be stored in a slot of type to (nil = untyped).
func Assignable(v Value, to *Type) bool {
	return to == nil || ConversionScore(v, to) != Incompatible
}

// Coerce converts v for storage in, or passing as, type to. A nil type accepts anything.
func Coerce(v Value, to *Type) (Value, error) {
	v = Normalize(v)
	if to == nil {
		return v, nil
	}
	if to == Void {
		return nil, nil
	}
	switch score := ConversionScore(v, to); score {
	case Identity, NullToReference:
		return v, nil
	case Widening:
		return convertPrimitive(v, to), nil
	case Boxing:
		if to.IsPrimitive() {
			return convertPrimitive(v.(*Object).Native, to), nil
		}
		return &Object{Class: to, Native: v}, nil
	case ReferenceWidening:
		if TypeOf(v).IsPrimitive() {
			return Box(v)
		}
		return v, nil
	default:
		return nil, errs.Newf(errs.CodeTypeMismatch, "cannot convert %s to %s", TypeOf(v), to).(*errs.DomainError).
			WithContext(errs.CtxType, to.Name)
	}
}

func toFloat64(v Value) (float64, bool) {
	switch x := v.(type) {
	case int8:
		return float64(x), true
	case Char:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

func toInt64(v Value) (int64, bool) {
	switch x := v.(type) {
	case int8:
		return int64(x), true
	case Char:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case float32:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

// convertPrimitive converts a numeric value to the representation of primitive
// type to. Non-numeric input is returned unchanged.
func convertPrimitive(v Value, to *Type) Value {
	if to == Float || to == Double {
		f, ok := toFloat64(v)
		if !ok {
			return v
		}
		if to == Float {
			return float32(f)
		}
		return f
	}
	n, ok := toInt64(v)
	if !ok {
		return v
	}
	switch to {
	case Byte:
		return int8(n)
	case Short:
		return int16(n)
	case CharType:
		return Char(n)
	case Int:
		return int32(n)
	case Long:
		return n
	}
	return v
}
