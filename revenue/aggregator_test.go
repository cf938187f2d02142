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

package revenue

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkellner/salesetl/core"
)

func addAll(t *testing.T, a *Aggregator, records []core.Record) {
	t.Helper()
	ctx := context.Background()
	for _, r := range records {
		require.NoError(t, a.Add(ctx, r))
	}
}

func TestAggregatorBasicGrouping(t *testing.T) {
	a := NewAggregator()
	addAll(t, a, []core.Record{
		{"customer_id": "C001", "sale_amount": 120.50},
		{"customer_id": "C002", "sale_amount": 75.00},
		{"customer_id": "C001", "sale_amount": 29.50},
		{"customer_id": "C003", "sale_amount": 300.00},
		{"customer_id": "C002", "sale_amount": 25.00},
	})

	totals := a.Totals()
	require.Len(t, totals, 3)
	assert.InDelta(t, 150.00, totals["C001"], 1e-9)
	assert.InDelta(t, 100.00, totals["C002"], 1e-9)
	assert.InDelta(t, 300.00, totals["C003"], 1e-9)
	assert.Equal(t, int64(5), a.Processed())
	assert.Equal(t, int64(0), a.Skipped())
}

func TestAggregatorEmptyInput(t *testing.T) {
	a := NewAggregator()

	assert.Empty(t, a.Totals())
	assert.Empty(t, a.Report())
	results, err := a.Results()
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAggregatorSingleRecord(t *testing.T) {
	a := NewAggregator()
	addAll(t, a, []core.Record{
		{"customer_id": "C042", "sale_amount": 19.99},
	})

	totals := a.Totals()
	require.Len(t, totals, 1)
	assert.InDelta(t, 19.99, totals["C042"], 1e-9)
}

func TestAggregatorSkipsInvalidRecords(t *testing.T) {
	tests := []struct {
		name   string
		record core.Record
	}{
		{"missing customer id", core.Record{"sale_amount": 10.0}},
		{"nil customer id", core.Record{"customer_id": nil, "sale_amount": 10.0}},
		{"blank customer id", core.Record{"customer_id": "   ", "sale_amount": 10.0}},
		{"missing amount", core.Record{"customer_id": "C001"}},
		{"nil amount", core.Record{"customer_id": "C001", "sale_amount": nil}},
		{"non-numeric amount", core.Record{"customer_id": "C001", "sale_amount": "abc"}},
		{"negative amount", core.Record{"customer_id": "C001", "sale_amount": -5.0}},
		{"nan amount", core.Record{"customer_id": "C001", "sale_amount": math.NaN()}},
		{"infinite amount", core.Record{"customer_id": "C001", "sale_amount": math.Inf(1)}},
		{"unsupported id type", core.Record{"customer_id": 3.14, "sale_amount": 10.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAggregator()
			require.NoError(t, a.Add(context.Background(), tt.record))
			assert.Empty(t, a.Totals())
			assert.Equal(t, int64(1), a.Skipped())
			assert.Equal(t, int64(0), a.Processed())
		})
	}
}

func TestAggregatorMixedValidAndInvalid(t *testing.T) {
	a := NewAggregator()
	addAll(t, a, []core.Record{
		{"customer_id": "C001", "sale_amount": 50.0},
		{"customer_id": "", "sale_amount": 99.0},
		{"customer_id": "C002", "sale_amount": "not a number"},
		{"customer_id": "C001", "sale_amount": 25.0},
		{"customer_id": "C002", "sale_amount": -1.0},
	})

	totals := a.Totals()
	require.Len(t, totals, 1)
	assert.InDelta(t, 75.0, totals["C001"], 1e-9)
	assert.Equal(t, int64(2), a.Processed())
	assert.Equal(t, int64(3), a.Skipped())
}

func TestAggregatorZeroAmountCounts(t *testing.T) {
	a := NewAggregator()
	addAll(t, a, []core.Record{
		{"customer_id": "C001", "sale_amount": 0.0},
	})

	totals := a.Totals()
	require.Len(t, totals, 1)
	assert.Equal(t, 0.0, totals["C001"])
	assert.Equal(t, int64(1), a.Processed())
	assert.Equal(t, int64(0), a.Skipped())
}

func TestAggregatorDuplicateRowsEachContribute(t *testing.T) {
	a := NewAggregator()
	row := core.Record{"customer_id": "C007", "sale_amount": 12.5}
	addAll(t, a, []core.Record{row, row, row})

	totals := a.Totals()
	assert.InDelta(t, 37.5, totals["C007"], 1e-9)
	assert.Equal(t, int64(3), a.Processed())
}

func TestAggregatorOrderIndependence(t *testing.T) {
	records := []core.Record{
		{"customer_id": "C001", "sale_amount": 10.0},
		{"customer_id": "C002", "sale_amount": 20.0},
		{"customer_id": "C001", "sale_amount": 30.0},
		{"customer_id": "C003", "sale_amount": 5.0},
		{"customer_id": "C002", "sale_amount": 15.0},
		{"customer_id": "C003", "sale_amount": 2.5},
	}

	forward := NewAggregator()
	addAll(t, forward, records)

	shuffled := make([]core.Record, len(records))
	copy(shuffled, records)
	rng := rand.New(rand.NewSource(1))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	reversed := NewAggregator()
	addAll(t, reversed, shuffled)

	assert.Equal(t, forward.Totals(), reversed.Totals())
}

func TestAggregatorIdempotentPerInput(t *testing.T) {
	records := []core.Record{
		{"customer_id": "C001", "sale_amount": 10.0},
		{"customer_id": "C002", "sale_amount": 20.0},
		{"customer_id": "bad"},
	}

	first := NewAggregator()
	addAll(t, first, records)

	second := NewAggregator()
	addAll(t, second, records)

	assert.Equal(t, first.Totals(), second.Totals())
	assert.Equal(t, first.Skipped(), second.Skipped())
}

func TestAggregatorNumericStringAndIntAmounts(t *testing.T) {
	a := NewAggregator()
	addAll(t, a, []core.Record{
		{"customer_id": "C001", "sale_amount": "19.99"},
		{"customer_id": "C001", "sale_amount": 5},
		{"customer_id": "C001", "sale_amount": int64(3)},
	})

	totals := a.Totals()
	assert.InDelta(t, 27.99, totals["C001"], 1e-9)
}

func TestAggregatorIntegerCustomerIDs(t *testing.T) {
	a := NewAggregator()
	addAll(t, a, []core.Record{
		{"customer_id": 1001, "sale_amount": 10.0},
		{"customer_id": "1001", "sale_amount": 5.0},
	})

	totals := a.Totals()
	require.Len(t, totals, 1)
	assert.InDelta(t, 15.0, totals["1001"], 1e-9)
}

func TestAggregatorReportOrdering(t *testing.T) {
	a := NewAggregator()
	addAll(t, a, []core.Record{
		{"customer_id": "C002", "sale_amount": 100.0},
		{"customer_id": "C003", "sale_amount": 100.0},
		{"customer_id": "C001", "sale_amount": 250.0},
		{"customer_id": "C004", "sale_amount": 50.0},
	})

	report := a.Report()
	require.Len(t, report, 4)
	assert.Equal(t, "C001", report[0].CustomerID)
	// Equal totals break ties by ascending customer id.
	assert.Equal(t, "C002", report[1].CustomerID)
	assert.Equal(t, "C003", report[2].CustomerID)
	assert.Equal(t, "C004", report[3].CustomerID)
}

func TestAggregatorResultsRecords(t *testing.T) {
	a := NewAggregator()
	addAll(t, a, []core.Record{
		{"customer_id": "C001", "sale_amount": 10.0},
		{"customer_id": "C002", "sale_amount": 40.0},
	})

	results, err := a.Results()
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "C002", results[0][FieldCustomerID])
	assert.InDelta(t, 40.0, results[0][FieldTotalRevenue].(float64), 1e-9)
	assert.Equal(t, "C001", results[1][FieldCustomerID])
}

func TestAggregatorSummaryResult(t *testing.T) {
	a := NewAggregator()
	addAll(t, a, []core.Record{
		{"customer_id": "C001", "sale_amount": 10.0},
		{"customer_id": "C002", "sale_amount": 40.0},
		{"customer_id": "", "sale_amount": 99.0},
	})

	summary, err := a.Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary["customers"])
	assert.InDelta(t, 50.0, summary["total_revenue"].(float64), 1e-9)
	assert.Equal(t, int64(2), summary["records_processed"])
	assert.Equal(t, int64(1), summary["records_skipped"])
}

func TestAggregatorReset(t *testing.T) {
	a := NewAggregator()
	addAll(t, a, []core.Record{
		{"customer_id": "C001", "sale_amount": 10.0},
		{"customer_id": "bad"},
	})

	a.Reset()
	assert.Empty(t, a.Totals())
	assert.Equal(t, int64(0), a.Processed())
	assert.Equal(t, int64(0), a.Skipped())
}

func TestAggregatorCustomFields(t *testing.T) {
	a := NewAggregator(
		WithCustomerField("cust"),
		WithAmountField("amount"),
	)
	addAll(t, a, []core.Record{
		{"cust": "C001", "amount": 10.0},
		{"customer_id": "C002", "sale_amount": 99.0},
	})

	totals := a.Totals()
	require.Len(t, totals, 1)
	assert.InDelta(t, 10.0, totals["C001"], 1e-9)
	assert.Equal(t, int64(1), a.Skipped())
}

func TestAggregatorContextCancellation(t *testing.T) {
	a := NewAggregator()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := a.Add(ctx, core.Record{"customer_id": "C001", "sale_amount": 10.0})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, a.Totals())
}

func BenchmarkAggregatorAdd(b *testing.B) {
	a := NewAggregator()
	ctx := context.Background()
	record := core.Record{"customer_id": "C001", "sale_amount": 19.99}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = a.Add(ctx, record)
	}
}
