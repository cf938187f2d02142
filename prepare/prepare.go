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

// Package prepare cleans raw sales extracts before they are loaded into
// the warehouse or aggregated. Cleaning steps are built from the
// transform and filter primitives so they compose into pipelines:
// identifier normalization, duplicate business-key removal, timestamp
// standardization, and non-negative amount screening.
package prepare

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dkellner/salesetl/aggregate"
	"github.com/dkellner/salesetl/core"
	"github.com/dkellner/salesetl/transform"
)

// StandardTimeLayout is the canonical timestamp format written by
// StandardizeTimestamp.
const StandardTimeLayout = "2006-01-02 15:04:05"

// defaultTimeLayouts are the formats raw extracts have been seen to use.
var defaultTimeLayouts = []string{
	StandardTimeLayout,
	time.RFC3339,
	"2006-01-02",
	"01/02/2006",
	"01/02/2006 15:04",
	"2006/01/02",
}

// NormalizeID trims surrounding whitespace and upper-cases the given
// identifier fields. Non-string values are left untouched.
func NormalizeID(fields ...string) core.Transformer {
	trim := transform.TrimSpace(fields...)
	upper := transform.ToUpper(fields...)

	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		trimmed, err := trim.Transform(ctx, record)
		if err != nil {
			return nil, err
		}
		return upper.Transform(ctx, trimmed)
	})
}

// StandardizeTimestamp rewrites a string timestamp field into
// StandardTimeLayout, trying each accepted layout in turn. Records whose
// value matches no layout produce an error so the pipeline's error
// strategy decides their fate.
func StandardizeTimestamp(field string, layouts ...string) core.Transformer {
	accepted := layouts
	if len(accepted) == 0 {
		accepted = defaultTimeLayouts
	}

	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		value, exists := record[field]
		if !exists || value == nil {
			return record, nil
		}

		str, ok := value.(string)
		if !ok {
			if t, isTime := value.(time.Time); isTime {
				result := cloneRecord(record)
				result[field] = t.Format(StandardTimeLayout)
				return result, nil
			}
			return record, nil
		}

		str = strings.TrimSpace(str)
		if str == "" {
			return record, nil
		}

		for _, layout := range accepted {
			if parsed, err := time.Parse(layout, str); err == nil {
				result := cloneRecord(record)
				result[field] = parsed.Format(StandardTimeLayout)
				return result, nil
			}
		}

		return nil, fmt.Errorf("unrecognized timestamp %q in field %s", str, field)
	})
}

// Deduper drops records whose business-key tuple has been seen before.
// Records missing any key field pass through, the data quality
// validators own that case.
type Deduper struct {
	keys []string
	mu   sync.Mutex
	seen map[string]bool
}

// NewDeduper creates a Deduper over the given business-key fields.
func NewDeduper(keys ...string) *Deduper {
	return &Deduper{
		keys: keys,
		seen: make(map[string]bool),
	}
}

// ShouldInclude implements core.Filter.
func (d *Deduper) ShouldInclude(ctx context.Context, record core.Record) (bool, error) {
	var parts []string
	for _, key := range d.keys {
		value, exists := record[key]
		if !exists || value == nil {
			return true, nil
		}
		parts = append(parts, fmt.Sprintf("%v", value))
	}
	composite := strings.Join(parts, "\x1f")

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[composite] {
		return false, nil
	}
	d.seen[composite] = true
	return true, nil
}

// Reset clears the seen set so the Deduper can screen another extract.
func (d *Deduper) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]bool)
}

// NonNegativeAmount excludes records whose amount field is present but
// negative, non-numeric, NaN, or infinite. Records without the field
// pass through so the aggregator's own validation reports them.
func NonNegativeAmount(field string) core.Filter {
	return core.FilterFunc(func(ctx context.Context, record core.Record) (bool, error) {
		value, exists := record[field]
		if !exists || value == nil {
			return true, nil
		}

		amount, err := aggregate.ToFloat64(value)
		if err != nil {
			return false, nil
		}
		if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
			return false, nil
		}
		return true, nil
	})
}

// SalesCleaning returns the standard cleaning steps for a raw sales
// extract: normalized identifiers, standardized sale dates, unique
// transactions, and screened amounts.
func SalesCleaning() ([]core.Transformer, []core.Filter) {
	transformers := []core.Transformer{
		NormalizeID("customer_id", "product_id", "store_id"),
		StandardizeTimestamp("sale_date"),
	}
	filters := []core.Filter{
		NewDeduper("transaction_id"),
		NonNegativeAmount("sale_amount"),
	}
	return transformers, filters
}

// CleanRecords applies cleaning steps to an in-memory batch, dropping
// records that fail a filter or a transformer. It returns the surviving
// records and the number dropped.
func CleanRecords(ctx context.Context, records []core.Record, transformers []core.Transformer, filters []core.Filter) ([]core.Record, int, error) {
	var cleaned []core.Record
	dropped := 0

recordLoop:
	for _, record := range records {
		select {
		case <-ctx.Done():
			return nil, dropped, ctx.Err()
		default:
		}

		for _, filter := range filters {
			include, err := filter.ShouldInclude(ctx, record)
			if err != nil {
				return nil, dropped, err
			}
			if !include {
				dropped++
				continue recordLoop
			}
		}

		current := record
		for _, transformer := range transformers {
			next, err := transformer.Transform(ctx, current)
			if err != nil {
				dropped++
				continue recordLoop
			}
			current = next
		}

		cleaned = append(cleaned, current)
	}

	return cleaned, dropped, nil
}

func cloneRecord(record core.Record) core.Record {
	result := make(core.Record, len(record))
	for k, v := range record {
		result[k] = v
	}
	return result
}
