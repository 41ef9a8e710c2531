package model

import (
	"encoding/json"
	"strconv"
)

// Value is an optional float64. Indicator outputs are invalid until their
// warm-up is satisfied, and that state must never collapse to zero.
type Value struct {
	v  float64
	ok bool
}

// Some wraps a valid value.
func Some(v float64) Value { return Value{v: v, ok: true} }

// None is the invalid value.
func None() Value { return Value{} }

// Get returns the value and whether it is valid.
func (x Value) Get() (float64, bool) { return x.v, x.ok }

// Valid reports whether the value is present.
func (x Value) Valid() bool { return x.ok }

// Or returns the value, or def when invalid.
func (x Value) Or(def float64) float64 {
	if !x.ok {
		return def
	}
	return x.v
}

func (x Value) String() string {
	if !x.ok {
		return "n/a"
	}
	return strconv.FormatFloat(x.v, 'f', 2, 64)
}

// MarshalJSON encodes an invalid value as null.
func (x Value) MarshalJSON() ([]byte, error) {
	if !x.ok {
		return []byte("null"), nil
	}
	return json.Marshal(x.v)
}

// UnmarshalJSON decodes null as invalid.
func (x *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*x = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*x = Some(f)
	return nil
}

// LastValue returns the final element of an indicator series, or None.
func LastValue(vs []Value) Value {
	if len(vs) == 0 {
		return None()
	}
	return vs[len(vs)-1]
}

// PrevValid returns the most recent valid value strictly before the last
// index, skipping invalid entries.
func PrevValid(vs []Value) Value {
	for i := len(vs) - 2; i >= 0; i-- {
		if vs[i].ok {
			return vs[i]
		}
	}
	return None()
}
