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

// Package warehouse loads prepared sales data into a PostgreSQL star
// schema: dim_customer, dim_product, dim_store, and fact_sales. Loads
// are truncate-and-reload inside a single transaction, matching how the
// warehouse is rebuilt from the prepared extracts. The package also
// exposes the revenue-per-customer rollup as a SQL query against
// fact_sales for deployments that prefer to aggregate in the database.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dkellner/salesetl/aggregate"
	"github.com/dkellner/salesetl/core"
	"github.com/dkellner/salesetl/revenue"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS dim_customer (
		customer_id BIGINT PRIMARY KEY,
		name TEXT,
		region TEXT,
		join_date TEXT,
		loyalty_points BIGINT,
		customer_segment TEXT,
		standard_date_time TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS dim_product (
		product_id BIGINT PRIMARY KEY,
		product_name TEXT,
		category TEXT,
		unit_price DOUBLE PRECISION,
		stock_quantity BIGINT,
		subcategory TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS dim_store (
		store_id BIGINT PRIMARY KEY,
		store_name TEXT DEFAULT 'Unknown'
	)`,
	`CREATE TABLE IF NOT EXISTS fact_sales (
		transaction_id BIGINT PRIMARY KEY,
		sale_date TEXT,
		customer_id BIGINT,
		product_id BIGINT,
		store_id BIGINT,
		campaign_id BIGINT,
		sale_amount DOUBLE PRECISION,
		discount_percent DOUBLE PRECISION,
		payment_type TEXT,
		FOREIGN KEY (customer_id) REFERENCES dim_customer (customer_id),
		FOREIGN KEY (product_id) REFERENCES dim_product (product_id),
		FOREIGN KEY (store_id) REFERENCES dim_store (store_id)
	)`,
}

var (
	customerColumns = []string{"customer_id", "name", "region", "join_date", "loyalty_points", "customer_segment", "standard_date_time"}
	productColumns  = []string{"product_id", "product_name", "category", "unit_price", "stock_quantity", "subcategory"}
	storeColumns    = []string{"store_id", "store_name"}
	salesColumns    = []string{"transaction_id", "sale_date", "customer_id", "product_id", "store_id", "campaign_id", "sale_amount", "discount_percent", "payment_type"}
)

// revenueByCustomerQuery computes the per-customer revenue rollup in the
// database. Rows with a null customer or a negative amount are excluded,
// and ties order by the id's text form, matching the in-process
// aggregator's validation and report ordering.
const revenueByCustomerQuery = `
	SELECT customer_id::TEXT, SUM(sale_amount) AS total_revenue
	FROM fact_sales
	WHERE customer_id IS NOT NULL
	  AND sale_amount IS NOT NULL
	  AND sale_amount >= 0
	GROUP BY customer_id
	ORDER BY total_revenue DESC, customer_id::TEXT ASC`

// Loader owns a connection to the warehouse database.
type Loader struct {
	db     *sql.DB
	ownsDB bool
	logger *logrus.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLogger sets the logger used for load progress.
func WithLogger(logger *logrus.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader opens a connection to the warehouse at the given DSN.
func NewLoader(dsn string, opts ...LoaderOption) (*Loader, error) {
	if dsn == "" {
		return nil, errors.New("warehouse: dsn is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "warehouse: open database")
	}

	loader := newLoader(db, opts...)
	loader.ownsDB = true
	return loader, nil
}

// NewLoaderWithDB wraps an existing database handle. The caller keeps
// ownership of the handle.
func NewLoaderWithDB(db *sql.DB, opts ...LoaderOption) *Loader {
	return newLoader(db, opts...)
}

func newLoader(db *sql.DB, opts ...LoaderOption) *Loader {
	loader := &Loader{
		db:     db,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(loader)
	}
	return loader
}

// Close releases the database handle if the Loader opened it.
func (l *Loader) Close() error {
	if !l.ownsDB || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// EnsureSchema creates the star schema tables if they do not exist.
func (l *Loader) EnsureSchema(ctx context.Context) error {
	l.logger.Info("creating warehouse schema tables")

	for _, stmt := range schemaStatements {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "warehouse: create schema")
		}
	}
	return nil
}

// Load rebuilds the warehouse from prepared extracts: existing rows are
// deleted and the dimension and fact tables repopulated, all in one
// transaction. Store rows are derived from the distinct store ids seen
// in the sales extract.
func (l *Loader) Load(ctx context.Context, customers, products, sales []core.Record) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "warehouse: begin transaction")
	}
	defer tx.Rollback()

	if err := l.deleteExisting(ctx, tx); err != nil {
		return err
	}

	if err := l.copyRecords(ctx, tx, "dim_customer", customerColumns, customers); err != nil {
		return err
	}
	l.logger.WithField("rows", len(customers)).Info("inserted customers")

	if err := l.copyRecords(ctx, tx, "dim_product", productColumns, products); err != nil {
		return err
	}
	l.logger.WithField("rows", len(products)).Info("inserted products")

	stores := StoresFromSales(sales)
	if err := l.copyRecords(ctx, tx, "dim_store", storeColumns, stores); err != nil {
		return err
	}
	l.logger.WithField("rows", len(stores)).Info("inserted stores")

	if err := l.copyRecords(ctx, tx, "fact_sales", salesColumns, sales); err != nil {
		return err
	}
	l.logger.WithField("rows", len(sales)).Info("inserted sales transactions")

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "warehouse: commit load")
	}

	l.logger.Info("warehouse populated")
	return nil
}

func (l *Loader) deleteExisting(ctx context.Context, tx *sql.Tx) error {
	l.logger.Info("deleting existing warehouse records")

	// fact_sales first, the dimensions carry its foreign keys.
	for _, table := range []string{"fact_sales", "dim_customer", "dim_product", "dim_store"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return errors.Wrapf(err, "warehouse: clear %s", table)
		}
	}
	return nil
}

// copyRecords bulk-loads records through the COPY protocol.
func (l *Loader) copyRecords(ctx context.Context, tx *sql.Tx, table string, columns []string, records []core.Record) error {
	if len(records) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, columns...))
	if err != nil {
		return errors.Wrapf(err, "warehouse: prepare copy into %s", table)
	}

	for _, record := range records {
		values := make([]interface{}, len(columns))
		for i, column := range columns {
			values[i] = columnValue(record, column)
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			stmt.Close()
			return errors.Wrapf(err, "warehouse: copy row into %s", table)
		}
	}

	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return errors.Wrapf(err, "warehouse: flush copy into %s", table)
	}
	return errors.Wrapf(stmt.Close(), "warehouse: close copy into %s", table)
}

// columnValue normalizes a record field for the COPY protocol. Missing
// fields become NULL, numeric strings stay as-is (the server parses
// them against the column type).
func columnValue(record core.Record, column string) interface{} {
	value, ok := record[column]
	if !ok || value == nil {
		return nil
	}

	switch v := value.(type) {
	case string, int, int32, int64, float32, float64, bool:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// StoresFromSales derives dim_store rows from the distinct store ids in
// a sales extract, in first-seen order.
func StoresFromSales(sales []core.Record) []core.Record {
	seen := make(map[string]bool)
	var stores []core.Record

	for _, sale := range sales {
		id, ok := sale["store_id"]
		if !ok || id == nil {
			continue
		}
		key := fmt.Sprintf("%v", id)
		if seen[key] {
			continue
		}
		seen[key] = true
		stores = append(stores, core.Record{
			"store_id":   id,
			"store_name": fmt.Sprintf("Store %v", id),
		})
	}

	return stores
}

// RevenueByCustomer runs the per-customer revenue rollup in the
// database and returns totals sorted by descending revenue, ties broken
// by ascending customer id.
func (l *Loader) RevenueByCustomer(ctx context.Context) ([]revenue.CustomerTotal, error) {
	rows, err := l.db.QueryContext(ctx, revenueByCustomerQuery)
	if err != nil {
		return nil, errors.Wrap(err, "warehouse: revenue query")
	}
	defer rows.Close()

	var totals []revenue.CustomerTotal
	for rows.Next() {
		var total revenue.CustomerTotal
		if err := rows.Scan(&total.CustomerID, &total.TotalRevenue); err != nil {
			return nil, errors.Wrap(err, "warehouse: scan revenue row")
		}
		totals = append(totals, total)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "warehouse: read revenue rows")
	}

	return totals, nil
}

// SumSaleAmounts totals the sale_amount fields of a sales extract,
// skipping rows the in-process aggregator would skip. Used for load
// verification against the database rollup.
func SumSaleAmounts(sales []core.Record) float64 {
	var sum float64
	for _, sale := range sales {
		value, ok := sale["sale_amount"]
		if !ok || value == nil {
			continue
		}
		amount, err := aggregate.ToFloat64(value)
		if err != nil || amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
			continue
		}
		sum += amount
	}
	return sum
}
