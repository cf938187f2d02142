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

package prepare

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkellner/salesetl/core"
)

func TestNormalizeID(t *testing.T) {
	transformer := NormalizeID("customer_id", "store_id")

	record, err := transformer.Transform(context.Background(), core.Record{
		"customer_id": "  c001 ",
		"store_id":    "s404",
		"sale_amount": 19.99,
	})
	require.NoError(t, err)

	assert.Equal(t, "C001", record["customer_id"])
	assert.Equal(t, "S404", record["store_id"])
	assert.Equal(t, 19.99, record["sale_amount"])
}

func TestNormalizeIDLeavesNonStrings(t *testing.T) {
	transformer := NormalizeID("customer_id")

	record, err := transformer.Transform(context.Background(), core.Record{
		"customer_id": 1001,
	})
	require.NoError(t, err)
	assert.Equal(t, 1001, record["customer_id"])
}

func TestStandardizeTimestamp(t *testing.T) {
	transformer := StandardizeTimestamp("sale_date")

	tests := []struct {
		name     string
		input    interface{}
		expected string
	}{
		{"already standard", "2025-03-14 09:30:00", "2025-03-14 09:30:00"},
		{"date only", "2025-03-14", "2025-03-14 00:00:00"},
		{"us format", "03/14/2025", "2025-03-14 00:00:00"},
		{"rfc3339", "2025-03-14T09:30:00Z", "2025-03-14 09:30:00"},
		{"padded", "  2025-03-14  ", "2025-03-14 00:00:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := transformer.Transform(context.Background(), core.Record{
				"sale_date": tt.input,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, record["sale_date"])
		})
	}
}

func TestStandardizeTimestampUnparseable(t *testing.T) {
	transformer := StandardizeTimestamp("sale_date")

	_, err := transformer.Transform(context.Background(), core.Record{
		"sale_date": "next tuesday",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized timestamp")
}

func TestStandardizeTimestampMissingFieldPasses(t *testing.T) {
	transformer := StandardizeTimestamp("sale_date")

	record, err := transformer.Transform(context.Background(), core.Record{
		"customer_id": "C001",
	})
	require.NoError(t, err)
	assert.Equal(t, "C001", record["customer_id"])
}

func TestDeduperDropsRepeatedKeys(t *testing.T) {
	deduper := NewDeduper("transaction_id")
	ctx := context.Background()

	include, err := deduper.ShouldInclude(ctx, core.Record{"transaction_id": "T1"})
	require.NoError(t, err)
	assert.True(t, include)

	include, err = deduper.ShouldInclude(ctx, core.Record{"transaction_id": "T1"})
	require.NoError(t, err)
	assert.False(t, include)

	include, err = deduper.ShouldInclude(ctx, core.Record{"transaction_id": "T2"})
	require.NoError(t, err)
	assert.True(t, include)
}

func TestDeduperCompositeKeys(t *testing.T) {
	deduper := NewDeduper("customer_id", "sale_date")
	ctx := context.Background()

	include, _ := deduper.ShouldInclude(ctx, core.Record{"customer_id": "C1", "sale_date": "2025-01-01"})
	assert.True(t, include)

	include, _ = deduper.ShouldInclude(ctx, core.Record{"customer_id": "C1", "sale_date": "2025-01-02"})
	assert.True(t, include)

	include, _ = deduper.ShouldInclude(ctx, core.Record{"customer_id": "C1", "sale_date": "2025-01-01"})
	assert.False(t, include)
}

func TestDeduperMissingKeyPasses(t *testing.T) {
	deduper := NewDeduper("transaction_id")

	include, err := deduper.ShouldInclude(context.Background(), core.Record{"customer_id": "C1"})
	require.NoError(t, err)
	assert.True(t, include)
}

func TestDeduperReset(t *testing.T) {
	deduper := NewDeduper("transaction_id")
	ctx := context.Background()

	_, _ = deduper.ShouldInclude(ctx, core.Record{"transaction_id": "T1"})
	deduper.Reset()

	include, err := deduper.ShouldInclude(ctx, core.Record{"transaction_id": "T1"})
	require.NoError(t, err)
	assert.True(t, include)
}

func TestNonNegativeAmount(t *testing.T) {
	filter := NonNegativeAmount("sale_amount")
	ctx := context.Background()

	tests := []struct {
		name    string
		value   interface{}
		include bool
	}{
		{"positive float", 19.99, true},
		{"zero", 0.0, true},
		{"numeric string", "5.25", true},
		{"negative", -1.0, false},
		{"negative string", "-3", false},
		{"non numeric", "refund", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			include, err := filter.ShouldInclude(ctx, core.Record{"sale_amount": tt.value})
			require.NoError(t, err)
			assert.Equal(t, tt.include, include)
		})
	}
}

func TestNonNegativeAmountMissingFieldPasses(t *testing.T) {
	filter := NonNegativeAmount("sale_amount")

	include, err := filter.ShouldInclude(context.Background(), core.Record{"customer_id": "C1"})
	require.NoError(t, err)
	assert.True(t, include)
}

func TestCleanRecords(t *testing.T) {
	transformers, filters := SalesCleaning()

	records := []core.Record{
		{"transaction_id": "T1", "customer_id": " c001 ", "sale_amount": 10.0, "sale_date": "2025-01-05"},
		{"transaction_id": "T1", "customer_id": "C001", "sale_amount": 10.0, "sale_date": "2025-01-05"},
		{"transaction_id": "T2", "customer_id": "c002", "sale_amount": -5.0, "sale_date": "2025-01-06"},
		{"transaction_id": "T3", "customer_id": "c003", "sale_amount": 7.5, "sale_date": "01/06/2025"},
	}

	cleaned, dropped, err := CleanRecords(context.Background(), records, transformers, filters)
	require.NoError(t, err)

	require.Len(t, cleaned, 2)
	assert.Equal(t, 2, dropped)

	assert.Equal(t, "C001", cleaned[0]["customer_id"])
	assert.Equal(t, "2025-01-05 00:00:00", cleaned[0]["sale_date"])
	assert.Equal(t, "C003", cleaned[1]["customer_id"])
	assert.Equal(t, "2025-01-06 00:00:00", cleaned[1]["sale_date"])
}

func TestCleanRecordsDropsUnparseableTimestamps(t *testing.T) {
	transformers, filters := SalesCleaning()

	records := []core.Record{
		{"transaction_id": "T1", "customer_id": "c001", "sale_amount": 10.0, "sale_date": "whenever"},
	}

	cleaned, dropped, err := CleanRecords(context.Background(), records, transformers, filters)
	require.NoError(t, err)
	assert.Empty(t, cleaned)
	assert.Equal(t, 1, dropped)
}

func TestCleanRecordsEmptyInput(t *testing.T) {
	transformers, filters := SalesCleaning()

	cleaned, dropped, err := CleanRecords(context.Background(), nil, transformers, filters)
	require.NoError(t, err)
	assert.Empty(t, cleaned)
	assert.Zero(t, dropped)
}
