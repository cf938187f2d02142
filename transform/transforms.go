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

// Package transform provides composable record transformers for sales
// extracts: projection, renaming, string normalization for identifier
// columns, and coercion of the loosely typed values CSV and API sources
// produce.
//
// Transformers never mutate their input record. Every constructor
// returns a core.Transformer for use in a pipeline's Transform stage.
package transform

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dkellner/salesetl/core"
)

// clone copies a record so a transformer can modify fields safely.
func clone(record core.Record) core.Record {
	out := make(core.Record, len(record))
	for field, value := range record {
		out[field] = value
	}
	return out
}

// perField builds a transformer that rewrites each named field through fn.
// Missing fields are left alone.
func perField(fields []string, fn func(interface{}) (interface{}, error)) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		out := clone(record)
		for _, field := range fields {
			value, exists := out[field]
			if !exists {
				continue
			}
			rewritten, err := fn(value)
			if err != nil {
				return nil, fmt.Errorf("transform field %s: %w", field, err)
			}
			out[field] = rewritten
		}
		return out, nil
	})
}

// perString is perField restricted to string values; non-strings pass
// through untouched, which keeps normalizers safe on typed sources.
func perString(fields []string, fn func(string) string) core.Transformer {
	return perField(fields, func(value interface{}) (interface{}, error) {
		if str, ok := value.(string); ok {
			return fn(str), nil
		}
		return value, nil
	})
}

// Select keeps only the named fields, dropping everything else. Useful
// for cutting a wide fact row down to the report columns.
func Select(fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		out := make(core.Record, len(fields))
		for _, field := range fields {
			if value, exists := record[field]; exists {
				out[field] = value
			}
		}
		return out, nil
	})
}

// Rename maps source column names to the canonical ones the rest of the
// pipeline expects (for example cust_id -> customer_id). Fields absent
// from the mapping keep their names.
func Rename(mapping map[string]string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		out := make(core.Record, len(record))
		for field, value := range record {
			if renamed, ok := mapping[field]; ok {
				field = renamed
			}
			out[field] = value
		}
		return out, nil
	})
}

// AddField computes a derived field from the record, such as a net
// amount from sale_amount and discount.
func AddField(field string, fn func(core.Record) interface{}) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		out := clone(record)
		out[field] = fn(record)
		return out, nil
	})
}

// Default fills a missing or nil field with a fallback value, mirroring
// the warehouse convention of defaulting unknown dimension attributes.
func Default(field string, fallback interface{}) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		if value, exists := record[field]; exists && value != nil {
			return record, nil
		}
		out := clone(record)
		out[field] = fallback
		return out, nil
	})
}

// TrimSpace strips surrounding whitespace from the named string fields.
// Raw extracts routinely pad identifier columns.
func TrimSpace(fields ...string) core.Transformer {
	return perString(fields, strings.TrimSpace)
}

// ToUpper uppercases the named string fields.
func ToUpper(fields ...string) core.Transformer {
	return perString(fields, strings.ToUpper)
}

// ToLower lowercases the named string fields.
func ToLower(fields ...string) core.Transformer {
	return perString(fields, strings.ToLower)
}

// ToString renders the field as a string.
func ToString(field string) core.Transformer {
	return perField([]string{field}, func(value interface{}) (interface{}, error) {
		if value == nil {
			return "", nil
		}
		if str, ok := value.(string); ok {
			return str, nil
		}
		return fmt.Sprintf("%v", value), nil
	})
}

// ToInt coerces the field to an int. Numeric strings are parsed,
// floats truncate.
func ToInt(field string) core.Transformer {
	return perField([]string{field}, func(value interface{}) (interface{}, error) {
		switch v := value.(type) {
		case nil:
			return 0, nil
		case int:
			return v, nil
		case int32:
			return int(v), nil
		case int64:
			return int(v), nil
		case float64:
			return int(v), nil
		case string:
			return strconv.Atoi(strings.TrimSpace(v))
		default:
			return nil, fmt.Errorf("cannot coerce %T to int", value)
		}
	})
}

// ToFloat coerces the field to a float64, the representation sale
// amounts aggregate in.
func ToFloat(field string) core.Transformer {
	return perField([]string{field}, func(value interface{}) (interface{}, error) {
		switch v := value.(type) {
		case nil:
			return 0.0, nil
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			return strconv.ParseFloat(strings.TrimSpace(v), 64)
		default:
			return nil, fmt.Errorf("cannot coerce %T to float64", value)
		}
	})
}

// ToBool coerces the field to a bool, accepting strconv forms such as
// "true", "1", and "f" for flag columns like refunded.
func ToBool(field string) core.Transformer {
	return perField([]string{field}, func(value interface{}) (interface{}, error) {
		switch v := value.(type) {
		case nil:
			return false, nil
		case bool:
			return v, nil
		case int:
			return v != 0, nil
		case string:
			return strconv.ParseBool(strings.TrimSpace(v))
		default:
			return nil, fmt.Errorf("cannot coerce %T to bool", value)
		}
	})
}

// ParseTime parses a string field with the given layout into a
// time.Time. A value that is already a time.Time passes through.
func ParseTime(field, layout string) core.Transformer {
	return perField([]string{field}, func(value interface{}) (interface{}, error) {
		switch v := value.(type) {
		case time.Time:
			return v, nil
		case string:
			return time.Parse(layout, v)
		default:
			return value, nil
		}
	})
}

// RemoveField drops one field from each record.
func RemoveField(field string) core.Transformer {
	return RemoveFields(field)
}

// RemoveFields drops the named fields, for stripping bookkeeping
// columns before a report is written.
func RemoveFields(fields ...string) core.Transformer {
	drop := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		drop[field] = struct{}{}
	}

	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		out := make(core.Record, len(record))
		for field, value := range record {
			if _, gone := drop[field]; !gone {
				out[field] = value
			}
		}
		return out, nil
	})
}
