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

package warehouse

import (
	"context"
	"io"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkellner/salesetl/core"
	"github.com/dkellner/salesetl/revenue"
)

func TestNewLoaderRequiresDSN(t *testing.T) {
	_, err := NewLoader("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dsn is required")
}

func TestSchemaStatementsCoverStarSchema(t *testing.T) {
	tables := []string{"dim_customer", "dim_product", "dim_store", "fact_sales"}
	require.Len(t, schemaStatements, len(tables))

	for i, table := range tables {
		assert.Contains(t, schemaStatements[i], table)
		assert.Contains(t, schemaStatements[i], "IF NOT EXISTS")
	}

	// The fact table references every dimension.
	fact := schemaStatements[3]
	assert.Contains(t, fact, "REFERENCES dim_customer")
	assert.Contains(t, fact, "REFERENCES dim_product")
	assert.Contains(t, fact, "REFERENCES dim_store")
}

func TestRevenueQueryShape(t *testing.T) {
	assert.Contains(t, revenueByCustomerQuery, "GROUP BY customer_id")
	assert.Contains(t, revenueByCustomerQuery, "sale_amount >= 0")

	// Ties must order by the id's text form so the database report
	// matches revenue.Report(), which sorts ids as strings.
	assert.Contains(t, revenueByCustomerQuery, "ORDER BY total_revenue DESC, customer_id::TEXT ASC")
}

func TestRevenueQueryTieBreakMatchesReport(t *testing.T) {
	// BIGINT ids 9 and 10 with equal totals: text ordering puts "10"
	// first, and the in-process report agrees.
	aggregator := revenue.NewAggregator()
	ctx := context.Background()

	require.NoError(t, aggregator.Add(ctx, core.Record{"customer_id": 9, "sale_amount": 50.0}))
	require.NoError(t, aggregator.Add(ctx, core.Record{"customer_id": 10, "sale_amount": 50.0}))

	report := aggregator.Report()
	require.Len(t, report, 2)
	assert.Equal(t, "10", report[0].CustomerID)
	assert.Equal(t, "9", report[1].CustomerID)
}

func TestStoresFromSales(t *testing.T) {
	sales := []core.Record{
		{"transaction_id": 1, "store_id": 404},
		{"transaction_id": 2, "store_id": 406},
		{"transaction_id": 3, "store_id": 404},
		{"transaction_id": 4},
		{"transaction_id": 5, "store_id": nil},
	}

	stores := StoresFromSales(sales)
	require.Len(t, stores, 2)

	assert.Equal(t, 404, stores[0]["store_id"])
	assert.Equal(t, "Store 404", stores[0]["store_name"])
	assert.Equal(t, 406, stores[1]["store_id"])
	assert.Equal(t, "Store 406", stores[1]["store_name"])
}

func TestStoresFromSalesEmpty(t *testing.T) {
	assert.Empty(t, StoresFromSales(nil))
}

func TestColumnValue(t *testing.T) {
	record := core.Record{
		"customer_id": "C001",
		"sale_amount": 19.99,
		"store_id":    404,
		"campaign_id": nil,
		"flagged":     true,
	}

	assert.Equal(t, "C001", columnValue(record, "customer_id"))
	assert.Equal(t, 19.99, columnValue(record, "sale_amount"))
	assert.Equal(t, 404, columnValue(record, "store_id"))
	assert.Equal(t, true, columnValue(record, "flagged"))
	assert.Nil(t, columnValue(record, "campaign_id"))
	assert.Nil(t, columnValue(record, "missing"))
}

func TestSumSaleAmounts(t *testing.T) {
	sales := []core.Record{
		{"sale_amount": 10.0},
		{"sale_amount": "5.50"},
		{"sale_amount": 3},
		{"sale_amount": -4.0},
		{"sale_amount": math.NaN()},
		{"sale_amount": nil},
		{"customer_id": "C001"},
		{"sale_amount": "not a number"},
	}

	assert.InDelta(t, 18.50, SumSaleAmounts(sales), 1e-9)
}

func TestSumSaleAmountsEmpty(t *testing.T) {
	assert.Zero(t, SumSaleAmounts(nil))
}

// Integration test against a live warehouse, enabled by WAREHOUSE_TEST_DSN.
func TestLoaderIntegration(t *testing.T) {
	dsn := os.Getenv("WAREHOUSE_TEST_DSN")
	if dsn == "" {
		t.Skip("WAREHOUSE_TEST_DSN not set")
		return
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	loader, err := NewLoader(dsn, WithLogger(logger))
	require.NoError(t, err)
	defer loader.Close()

	ctx := context.Background()
	require.NoError(t, loader.EnsureSchema(ctx))

	customers := []core.Record{
		{"customer_id": 1, "name": "Ada", "region": "East"},
		{"customer_id": 2, "name": "Grace", "region": "West"},
	}
	products := []core.Record{
		{"product_id": 10, "product_name": "laptop", "category": "electronics", "unit_price": 900.0},
	}
	sales := []core.Record{
		{"transaction_id": 100, "customer_id": 1, "product_id": 10, "store_id": 404, "sale_amount": 900.0},
		{"transaction_id": 101, "customer_id": 2, "product_id": 10, "store_id": 404, "sale_amount": 450.0},
		{"transaction_id": 102, "customer_id": 1, "product_id": 10, "store_id": 406, "sale_amount": 50.0},
	}

	require.NoError(t, loader.Load(ctx, customers, products, sales))

	totals, err := loader.RevenueByCustomer(ctx)
	require.NoError(t, err)
	require.Len(t, totals, 2)

	assert.Equal(t, "1", totals[0].CustomerID)
	assert.InDelta(t, 950.0, totals[0].TotalRevenue, 1e-9)
	assert.Equal(t, "2", totals[1].CustomerID)
	assert.InDelta(t, 450.0, totals[1].TotalRevenue, 1e-9)

	// The database rollup agrees with the in-process sum.
	var dbTotal float64
	for _, total := range totals {
		dbTotal += total.TotalRevenue
	}
	assert.InDelta(t, SumSaleAmounts(sales), dbTotal, 1e-9)

	// Reload is idempotent.
	require.NoError(t, loader.Load(ctx, customers, products, sales))
	again, err := loader.RevenueByCustomer(ctx)
	require.NoError(t, err)
	assert.Equal(t, totals, again)
}

func TestLoaderErrorsCarryContext(t *testing.T) {
	_, err := NewLoader("")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "warehouse:"))
}
