//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Derek Kellner derek.kellner@gmail.com
//
// This file is part of SalesETL.
//
// SalesETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SalesETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with SalesETL. If not, see https://www.gnu.org/licenses/.

package aggregate

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dkellner/salesetl/core"
)

// Package aggregate provides grouped and single-field accumulation over
// streaming records. GroupBy composes the field aggregators in this file;
// each aggregator implements core.Aggregator and supports cloning so GroupBy
// can maintain independent state per group.

// Cloner is implemented by aggregators that can produce a fresh copy of
// themselves with zeroed state. GroupBy uses it for custom aggregators.
type Cloner interface {
	Clone() core.Aggregator
}

// CountAggregator counts the number of records.
type CountAggregator struct {
	count int64
}

func (c *CountAggregator) Add(ctx context.Context, record core.Record) error {
	c.count++
	return nil
}

func (c *CountAggregator) Result() (core.Record, error) {
	return core.Record{"count": c.count}, nil
}

func (c *CountAggregator) Reset() {
	c.count = 0
}

// Clone returns a zeroed copy.
func (c *CountAggregator) Clone() core.Aggregator {
	return &CountAggregator{}
}

// SumAggregator sums numeric values of a field. Records whose field is
// missing or non-numeric contribute nothing and are not an error.
type SumAggregator struct {
	Field string
	sum   float64
}

func (s *SumAggregator) Add(ctx context.Context, record core.Record) error {
	if value, exists := record[s.Field]; exists {
		if num, err := ToFloat64(value); err == nil {
			s.sum += num
		}
	}
	return nil
}

func (s *SumAggregator) Result() (core.Record, error) {
	return core.Record{"sum": s.sum}, nil
}

func (s *SumAggregator) Reset() {
	s.sum = 0
}

// Clone returns a zeroed copy over the same field.
func (s *SumAggregator) Clone() core.Aggregator {
	return &SumAggregator{Field: s.Field}
}

// AvgAggregator calculates the average of numeric values of a field.
type AvgAggregator struct {
	Field string
	sum   float64
	count int64
}

func (a *AvgAggregator) Add(ctx context.Context, record core.Record) error {
	if value, exists := record[a.Field]; exists {
		if num, err := ToFloat64(value); err == nil {
			a.sum += num
			a.count++
		}
	}
	return nil
}

func (a *AvgAggregator) Result() (core.Record, error) {
	if a.count == 0 {
		return core.Record{"avg": float64(0)}, nil
	}
	return core.Record{"avg": a.sum / float64(a.count)}, nil
}

func (a *AvgAggregator) Reset() {
	a.sum = 0
	a.count = 0
}

// Clone returns a zeroed copy over the same field.
func (a *AvgAggregator) Clone() core.Aggregator {
	return &AvgAggregator{Field: a.Field}
}

// MinAggregator tracks the minimum value of a field.
type MinAggregator struct {
	Field string
	min   interface{}
	set   bool
}

func (m *MinAggregator) Add(ctx context.Context, record core.Record) error {
	if value, exists := record[m.Field]; exists {
		if !m.set || compareValues(value, m.min) < 0 {
			m.min = value
			m.set = true
		}
	}
	return nil
}

func (m *MinAggregator) Result() (core.Record, error) {
	return core.Record{"min": m.min}, nil
}

func (m *MinAggregator) Reset() {
	m.min = nil
	m.set = false
}

// Clone returns a zeroed copy over the same field.
func (m *MinAggregator) Clone() core.Aggregator {
	return &MinAggregator{Field: m.Field}
}

// MaxAggregator tracks the maximum value of a field.
type MaxAggregator struct {
	Field string
	max   interface{}
	set   bool
}

func (m *MaxAggregator) Add(ctx context.Context, record core.Record) error {
	if value, exists := record[m.Field]; exists {
		if !m.set || compareValues(value, m.max) > 0 {
			m.max = value
			m.set = true
		}
	}
	return nil
}

func (m *MaxAggregator) Result() (core.Record, error) {
	return core.Record{"max": m.max}, nil
}

func (m *MaxAggregator) Reset() {
	m.max = nil
	m.set = false
}

// Clone returns a zeroed copy over the same field.
func (m *MaxAggregator) Clone() core.Aggregator {
	return &MaxAggregator{Field: m.Field}
}

// ToFloat64 converts common numeric representations to float64.
// Numeric strings are accepted so untyped CSV input can still aggregate.
func ToFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", value)
	}
}

func compareValues(a, b interface{}) int {
	// Numeric values compare numerically regardless of concrete type.
	fa, errA := ToFloat64(a)
	fb, errB := ToFloat64(b)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}

	if va, ok := a.(string); ok {
		if vb, ok := b.(string); ok {
			switch {
			case va < vb:
				return -1
			case va > vb:
				return 1
			default:
				return 0
			}
		}
	}
	return 0
}
