/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package coreutil

import "reflect"

// visitKey identifies one in-progress comparison so that a cycle in either
// argument resolves to equal rather than recursing forever.
type visitKey struct {
	a, b unsafePtr
}

type unsafePtr = uintptr

// DeepEqual compares a and b for structural equality. It is safe against
// cycles in either value: two references visited together earlier in the
// same recursion are treated as equal without descending again.
//
// A slice/array is never equal to a map carrying the same entries (the
// array-vs-object distinction in the distilled contract); scalar mismatches
// of different kinds are always unequal.
func DeepEqual(a, b interface{}) bool {
	return deepEqual(reflect.ValueOf(a), reflect.ValueOf(b), make(map[visitKey]bool))
}

func deepEqual(a, b reflect.Value, seen map[visitKey]bool) bool {
	if !a.IsValid() || !b.IsValid() {
		return a.IsValid() == b.IsValid()
	}

	if a.Kind() != b.Kind() {
		return false
	}

	switch a.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() == b.IsNil()
		}

		key := visitKey{a: a.Pointer(), b: b.Pointer()}
		if seen[key] {
			return true
		}
		seen[key] = true
	}

	switch a.Kind() {
	case reflect.Ptr, reflect.Interface:
		return deepEqual(a.Elem(), b.Elem(), seen)

	case reflect.Slice, reflect.Array:
		if a.Len() != b.Len() {
			return false
		}
		for i := 0; i < a.Len(); i++ {
			if !deepEqual(a.Index(i), b.Index(i), seen) {
				return false
			}
		}
		return true

	case reflect.Map:
		if a.Len() != b.Len() {
			return false
		}
		iter := a.MapRange()
		for iter.Next() {
			bv := b.MapIndex(iter.Key())
			if !bv.IsValid() {
				return false
			}
			if !deepEqual(iter.Value(), bv, seen) {
				return false
			}
		}
		return true

	case reflect.Struct:
		for i := 0; i < a.NumField(); i++ {
			if !deepEqual(a.Field(i), b.Field(i), seen) {
				return false
			}
		}
		return true

	default:
		if !a.CanInterface() || !b.CanInterface() {
			return a == b
		}
		return a.Interface() == b.Interface()
	}
}
