// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package vartype

import (
	"fmt"
)

// Unset is the string representation of a Variable that holds no value.
const Unset = "n/a"

// VarString is a type alias for Variable[string], representing a string value with initialization
// tracking. An empty string that was explicitly set is distinct from an unset value.
type VarString = Variable[string]

// Variable represents a generic type wrapper that holds a value and tracks its initialization state.
type Variable[T comparable] struct {
	value T
	isset bool
}

// NewVariable creates and returns a new Variable instance initialized with the provided value.
func NewVariable[T comparable](value T) Variable[T] {
	return Variable[T]{
		isset: true,
		value: value,
	}
}

// Reset clears the value of the Variable and marks it as uninitialized.
func (v *Variable[T]) Reset() {
	var newVal T
	v.value = newVal
	v.isset = false
}

// Value retrieves the current value stored in the Variable.
func (v Variable[T]) Value() T {
	return v.value
}

// Set assigns the provided value to the Variable and marks it as initialized. It reports whether
// the stored value changed.
func (v *Variable[T]) Set(val T) bool {
	changed := !v.isset || v.value != val
	v.value = val
	v.isset = true
	return changed
}

// IsSet returns true if the Variable has been initialized with a value, otherwise false.
func (v Variable[T]) IsSet() bool {
	return v.isset
}

// String returns a string representation of the Variable, or Unset if uninitialized.
func (v Variable[T]) String() string {
	if !v.isset {
		return Unset
	}
	return fmt.Sprint(v.value)
}
