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

// Package revenue computes total revenue per customer from streaming
// transaction records.
//
// The Aggregator folds records carrying a customer identifier and a sale
// amount into per-customer running totals. Records that fail validation
// (missing or blank customer id; missing, non-numeric, NaN, infinite, or
// negative amount) are excluded and counted, never fatal. Addition is
// commutative, so input order does not affect totals, and aggregating the
// same input twice from a fresh Aggregator yields the same result.
package revenue

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dkellner/salesetl/aggregate"
	"github.com/dkellner/salesetl/core"
)

// Default field names match the fact_sales schema used across the project.
const (
	DefaultCustomerField = "customer_id"
	DefaultAmountField   = "sale_amount"
)

// Output field names for result records.
const (
	FieldCustomerID   = "customer_id"
	FieldTotalRevenue = "total_revenue"
)

// CustomerTotal is one row of the revenue report.
type CustomerTotal struct {
	CustomerID   string
	TotalRevenue float64
}

// Aggregator accumulates total sale amounts per customer.
//
// It implements core.Aggregator (Add/Result/Reset) and core.GroupAggregator
// (Add/Results/Reset), so it can drive a pipeline's Aggregate stage directly.
// Not safe for concurrent use.
type Aggregator struct {
	customerField string
	amountField   string

	totals    map[string]float64
	skipped   int64
	processed int64
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithCustomerField overrides the field holding the customer identifier.
func WithCustomerField(field string) AggregatorOption {
	return func(a *Aggregator) {
		a.customerField = field
	}
}

// WithAmountField overrides the field holding the sale amount.
func WithAmountField(field string) AggregatorOption {
	return func(a *Aggregator) {
		a.amountField = field
	}
}

// NewAggregator creates an Aggregator with the given options applied over
// defaults (customer_id / sale_amount).
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		customerField: DefaultCustomerField,
		amountField:   DefaultAmountField,
		totals:        make(map[string]float64),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Add folds a single transaction record into the per-customer totals.
//
// Invalid records are skipped and counted; Add only returns an error when
// the context is cancelled.
func (a *Aggregator) Add(ctx context.Context, record core.Record) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	customerID, ok := a.customerID(record)
	if !ok {
		a.skipped++
		return nil
	}

	amount, ok := a.amount(record)
	if !ok {
		a.skipped++
		return nil
	}

	a.totals[customerID] += amount
	a.processed++
	return nil
}

// Totals returns a copy of the per-customer totals accumulated so far.
// An Aggregator that has seen no valid records returns an empty map.
func (a *Aggregator) Totals() map[string]float64 {
	out := make(map[string]float64, len(a.totals))
	for id, total := range a.totals {
		out[id] = total
	}
	return out
}

// Report returns the totals as rows sorted for presentation:
// descending total revenue, ties broken by ascending customer id.
func (a *Aggregator) Report() []CustomerTotal {
	report := make([]CustomerTotal, 0, len(a.totals))
	for id, total := range a.totals {
		report = append(report, CustomerTotal{CustomerID: id, TotalRevenue: total})
	}
	sort.Slice(report, func(i, j int) bool {
		if report[i].TotalRevenue != report[j].TotalRevenue {
			return report[i].TotalRevenue > report[j].TotalRevenue
		}
		return report[i].CustomerID < report[j].CustomerID
	})
	return report
}

// Results returns one record per customer in report order, implementing
// core.GroupAggregator for use as a pipeline Aggregate stage.
func (a *Aggregator) Results() ([]core.Record, error) {
	report := a.Report()
	results := make([]core.Record, 0, len(report))
	for _, row := range report {
		results = append(results, core.Record{
			FieldCustomerID:   row.CustomerID,
			FieldTotalRevenue: row.TotalRevenue,
		})
	}
	return results, nil
}

// Result returns a single summary record: distinct customer count, grand
// total revenue, and the processed/skipped counters.
func (a *Aggregator) Result() (core.Record, error) {
	var grandTotal float64
	for _, total := range a.totals {
		grandTotal += total
	}
	return core.Record{
		"customers":         int64(len(a.totals)),
		"total_revenue":     grandTotal,
		"records_processed": a.processed,
		"records_skipped":   a.skipped,
	}, nil
}

// Reset clears all totals and counters for reuse.
func (a *Aggregator) Reset() {
	a.totals = make(map[string]float64)
	a.skipped = 0
	a.processed = 0
}

// Skipped returns the number of records excluded by validation.
func (a *Aggregator) Skipped() int64 {
	return a.skipped
}

// Processed returns the number of records folded into totals.
func (a *Aggregator) Processed() int64 {
	return a.processed
}

// customerID extracts and normalizes the customer identifier.
// Integer identifiers are accepted and rendered in decimal so typed and
// untyped sources group together.
func (a *Aggregator) customerID(record core.Record) (string, bool) {
	value, exists := record[a.customerField]
	if !exists || value == nil {
		return "", false
	}
	switch v := value.(type) {
	case string:
		id := strings.TrimSpace(v)
		if id == "" {
			return "", false
		}
		return id, true
	case int, int32, int64:
		return fmt.Sprintf("%d", v), true
	default:
		return "", false
	}
}

// amount extracts and validates the sale amount.
// Non-numeric, NaN, infinite, and negative amounts are rejected.
func (a *Aggregator) amount(record core.Record) (float64, bool) {
	value, exists := record[a.amountField]
	if !exists || value == nil {
		return 0, false
	}
	amount, err := aggregate.ToFloat64(value)
	if err != nil {
		return 0, false
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0, false
	}
	if amount < 0 {
		return 0, false
	}
	return amount, true
}
