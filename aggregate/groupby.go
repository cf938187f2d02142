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
	"sort"
	"strings"

	"github.com/dkellner/salesetl/core"
)

// groupKeySep joins group field values into a map key. ASCII unit separator
// keeps keys unambiguous for any printable field value.
const groupKeySep = "\x1f"

// GroupBy folds records into per-group aggregation state, keyed by one or
// more group fields. It implements core.GroupAggregator: records stream in
// through Add, and Results emits one record per group carrying the original
// group field values plus each configured aggregate output field.
//
// Records missing any group field are counted as skipped rather than
// failing the fold.
type GroupBy struct {
	groupFields []string
	prototypes  map[string]core.Aggregator
	groups      map[string]*groupState
	skipped     int64
	processed   int64
}

// groupState holds the original group field values and the cloned
// aggregators for one group.
type groupState struct {
	keyValues   map[string]interface{}
	aggregators map[string]core.Aggregator
}

// NewGroupBy creates a GroupBy over the given group fields.
// At least one group field is required; configure aggregates with
// Count, Sum, Avg, Min, Max before adding records.
func NewGroupBy(groupFields ...string) *GroupBy {
	return &GroupBy{
		groupFields: groupFields,
		prototypes:  make(map[string]core.Aggregator),
		groups:      make(map[string]*groupState),
	}
}

// Count adds a count aggregator writing to the specified output field.
func (g *GroupBy) Count(outputField string) *GroupBy {
	g.prototypes[outputField] = &CountAggregator{}
	return g
}

// Sum adds a sum aggregator over field, writing to outputField.
func (g *GroupBy) Sum(field, outputField string) *GroupBy {
	g.prototypes[outputField] = &SumAggregator{Field: field}
	return g
}

// Avg adds an average aggregator over field, writing to outputField.
func (g *GroupBy) Avg(field, outputField string) *GroupBy {
	g.prototypes[outputField] = &AvgAggregator{Field: field}
	return g
}

// Min adds a minimum aggregator over field, writing to outputField.
func (g *GroupBy) Min(field, outputField string) *GroupBy {
	g.prototypes[outputField] = &MinAggregator{Field: field}
	return g
}

// Max adds a maximum aggregator over field, writing to outputField.
func (g *GroupBy) Max(field, outputField string) *GroupBy {
	g.prototypes[outputField] = &MaxAggregator{Field: field}
	return g
}

// Custom adds a caller-supplied aggregator writing to outputField.
// The aggregator must implement Cloner so each group gets fresh state.
func (g *GroupBy) Custom(outputField string, aggregator core.Aggregator) *GroupBy {
	g.prototypes[outputField] = aggregator
	return g
}

// Add folds a single record into its group's aggregators.
// A record missing any group field is skipped and counted, not an error.
func (g *GroupBy) Add(ctx context.Context, record core.Record) error {
	if len(g.groupFields) == 0 {
		return fmt.Errorf("groupby: no group fields configured")
	}

	key, keyValues, ok := g.buildGroupKey(record)
	if !ok {
		g.skipped++
		return nil
	}

	state, exists := g.groups[key]
	if !exists {
		state = &groupState{
			keyValues:   keyValues,
			aggregators: make(map[string]core.Aggregator, len(g.prototypes)),
		}
		for outputField, prototype := range g.prototypes {
			clone, err := g.cloneAggregator(prototype)
			if err != nil {
				return fmt.Errorf("groupby: %w", err)
			}
			state.aggregators[outputField] = clone
		}
		g.groups[key] = state
	}

	for outputField, aggregator := range state.aggregators {
		if err := aggregator.Add(ctx, record); err != nil {
			return fmt.Errorf("groupby: aggregation error for field %s: %w", outputField, err)
		}
	}

	g.processed++
	return nil
}

// Results returns one record per group, sorted by group key for
// deterministic output. Each record carries the group field values and the
// single value produced by each configured aggregator.
func (g *GroupBy) Results() ([]core.Record, error) {
	keys := make([]string, 0, len(g.groups))
	for key := range g.groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	results := make([]core.Record, 0, len(keys))
	for _, key := range keys {
		state := g.groups[key]
		result := make(core.Record, len(state.keyValues)+len(state.aggregators))
		for field, value := range state.keyValues {
			result[field] = value
		}
		for outputField, aggregator := range state.aggregators {
			value, err := aggregator.Result()
			if err != nil {
				return nil, fmt.Errorf("groupby: failed to get result for field %s: %w", outputField, err)
			}
			// Each field aggregator emits a single-entry record.
			for _, v := range value {
				result[outputField] = v
			}
		}
		results = append(results, result)
	}

	return results, nil
}

// Reset clears all group state and counters for reuse.
func (g *GroupBy) Reset() {
	g.groups = make(map[string]*groupState)
	g.skipped = 0
	g.processed = 0
}

// Skipped returns the number of records excluded for missing group fields.
func (g *GroupBy) Skipped() int64 {
	return g.skipped
}

// Processed returns the number of records folded into group state.
func (g *GroupBy) Processed() int64 {
	return g.processed
}

// buildGroupKey encodes the record's group field values into a map key and
// returns the original values alongside, so result records never need to
// decode the key. Missing fields make the record ineligible.
func (g *GroupBy) buildGroupKey(record core.Record) (string, map[string]interface{}, bool) {
	keyParts := make([]string, 0, len(g.groupFields))
	keyValues := make(map[string]interface{}, len(g.groupFields))
	for _, field := range g.groupFields {
		value, exists := record[field]
		if !exists || value == nil {
			return "", nil, false
		}
		keyParts = append(keyParts, fmt.Sprintf("%v", value))
		keyValues[field] = value
	}
	return strings.Join(keyParts, groupKeySep), keyValues, true
}

func (g *GroupBy) cloneAggregator(prototype core.Aggregator) (core.Aggregator, error) {
	if cloner, ok := prototype.(Cloner); ok {
		return cloner.Clone(), nil
	}
	return nil, fmt.Errorf("aggregator %T does not implement Clone", prototype)
}
