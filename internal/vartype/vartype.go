// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package vartype provides measurements that a provider may or may not deliver, like the
// elevation of a place.
package vartype

import (
	"strconv"
)

// Placeholder is printed for measurements that are not available.
const Placeholder = "n/a"

// Number is the set of types a Measure can hold.
type Number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

// Elevation is the height of a place above sea level in meters.
type Elevation = Measure[float64]

// Measure is a numeric value with a unit. The zero value is a missing measurement.
type Measure[T Number] struct {
	value T
	unit  string
	valid bool
}

// NewMeasure returns a valid measurement.
func NewMeasure[T Number](value T, unit string) Measure[T] {
	return Measure[T]{value: value, unit: unit, valid: true}
}

// NewElevation returns an elevation in meters.
func NewElevation(meters float64) Elevation {
	return NewMeasure(meters, "m")
}

// Set stores val and marks the measurement as valid. The unit is kept.
func (m *Measure[T]) Set(val T) {
	m.value = val
	m.valid = true
}

// Clear marks the measurement as missing.
func (m *Measure[T]) Clear() {
	var zero T
	m.value = zero
	m.valid = false
}

func (m Measure[T]) Value() T {
	return m.value
}

func (m Measure[T]) Unit() string {
	return m.unit
}

func (m Measure[T]) Valid() bool {
	return m.valid
}

// Format returns the value rounded to prec decimals followed by the unit. A negative prec
// uses the smallest number of digits needed.
func (m Measure[T]) Format(prec int) string {
	if !m.valid {
		return Placeholder
	}
	val := strconv.FormatFloat(float64(m.value), 'f', prec, 64)
	if m.unit == "" {
		return val
	}
	return val + " " + m.unit
}

func (m Measure[T]) String() string {
	return m.Format(-1)
}

// MarshalJSON encodes a missing measurement as null.
func (m Measure[T]) MarshalJSON() ([]byte, error) {
	if !m.valid {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, float64(m.value), 'f', -1, 64), nil
}
