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

package salesetl_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkellner/salesetl"
	"github.com/dkellner/salesetl/readers"
	"github.com/dkellner/salesetl/revenue"
	"github.com/dkellner/salesetl/transform"
)

// sliceSource serves records from memory and can inject read errors.
type sliceSource struct {
	records []salesetl.Record
	errAt   int
	err     error
	pos     int
	closed  bool
}

func (s *sliceSource) Read(ctx context.Context) (salesetl.Record, error) {
	if s.err != nil && s.pos == s.errAt {
		s.pos++
		return nil, s.err
	}
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	record := s.records[s.pos]
	s.pos++
	return record, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

// captureSink collects every record written to it.
type captureSink struct {
	records  []salesetl.Record
	writeErr error
	flushed  bool
	closed   bool
}

func (s *captureSink) Write(ctx context.Context, record salesetl.Record) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.records = append(s.records, record)
	return nil
}

func (s *captureSink) Flush() error {
	s.flushed = true
	return nil
}

func (s *captureSink) Close() error {
	s.closed = true
	return nil
}

func salesCSV(rows string) io.ReadCloser {
	return io.NopCloser(strings.NewReader("transaction_id,customer_id,sale_amount\n" + rows))
}

func TestPipelineBuilder_Validation(t *testing.T) {
	_, err := salesetl.NewPipeline().
		To(&captureSink{}).
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data source")

	_, err = salesetl.NewPipeline().
		From(&sliceSource{}).
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data sink")
}

func TestPipeline_TransformAndFilter(t *testing.T) {
	source := &sliceSource{records: []salesetl.Record{
		{"customer_id": "  C001  ", "sale_amount": 150.0},
		{"customer_id": "C002", "sale_amount": 0.0},
		{"customer_id": "C003", "sale_amount": 75.5},
	}}
	sink := &captureSink{}

	pipeline, err := salesetl.NewPipeline().
		From(source).
		Transform(transform.TrimSpace("customer_id")).
		Where(func(ctx context.Context, record salesetl.Record) (bool, error) {
			amount, _ := record["sale_amount"].(float64)
			return amount > 0, nil
		}).
		To(sink).
		Build()
	require.NoError(t, err)
	require.NoError(t, pipeline.Execute(context.Background()))

	require.Len(t, sink.records, 2)
	assert.Equal(t, "C001", sink.records[0]["customer_id"])
	assert.Equal(t, "C003", sink.records[1]["customer_id"])
	assert.True(t, source.closed)
	assert.True(t, sink.flushed)
	assert.True(t, sink.closed)
}

func TestPipeline_RevenueReport(t *testing.T) {
	reader, err := readers.NewCSVReader(salesCSV(
		"T1001,C001,150.00\n" +
			"T1002,C002,75.50\n" +
			"T1003,C001,49.99\n" +
			"T1004,,25.00\n" +
			"T1005,C003,not-a-number\n" +
			"T1006,C002,24.50\n"))
	require.NoError(t, err)

	sink := &captureSink{}
	aggregator := revenue.NewAggregator()

	pipeline, err := salesetl.NewPipeline().
		From(reader).
		Aggregate(aggregator).
		To(sink).
		WithErrorStrategy(salesetl.SkipErrors).
		Build()
	require.NoError(t, err)
	require.NoError(t, pipeline.Execute(context.Background()))

	// Highest revenue first, skipping the blank-id and non-numeric rows.
	require.Len(t, sink.records, 2)
	assert.Equal(t, "C001", sink.records[0][revenue.FieldCustomerID])
	assert.InDelta(t, 199.99, sink.records[0][revenue.FieldTotalRevenue].(float64), 0.001)
	assert.Equal(t, "C002", sink.records[1][revenue.FieldCustomerID])
	assert.InDelta(t, 100.00, sink.records[1][revenue.FieldTotalRevenue].(float64), 0.001)

	assert.Equal(t, int64(4), aggregator.Processed())
	assert.Equal(t, int64(2), aggregator.Skipped())
}

func TestPipeline_RevenueReportEmptyInput(t *testing.T) {
	reader, err := readers.NewCSVReader(salesCSV(""))
	require.NoError(t, err)

	sink := &captureSink{}
	pipeline, err := salesetl.NewPipeline().
		From(reader).
		Aggregate(revenue.NewAggregator()).
		To(sink).
		Build()
	require.NoError(t, err)

	require.NoError(t, pipeline.Execute(context.Background()))
	assert.Empty(t, sink.records)
}

func TestPipeline_RevenueReportOrderIndependence(t *testing.T) {
	forward := []salesetl.Record{
		{"customer_id": "C001", "sale_amount": 150.00},
		{"customer_id": "C002", "sale_amount": 75.50},
		{"customer_id": "C001", "sale_amount": 49.99},
	}
	reversed := []salesetl.Record{forward[2], forward[1], forward[0]}

	run := func(records []salesetl.Record) []salesetl.Record {
		sink := &captureSink{}
		pipeline, err := salesetl.NewPipeline().
			From(&sliceSource{records: records}).
			Aggregate(revenue.NewAggregator()).
			To(sink).
			Build()
		require.NoError(t, err)
		require.NoError(t, pipeline.Execute(context.Background()))
		return sink.records
	}

	assert.Equal(t, run(forward), run(reversed))
}

func TestPipeline_FailFastStopsOnReadError(t *testing.T) {
	source := &sliceSource{
		records: []salesetl.Record{
			{"customer_id": "C001", "sale_amount": 150.0},
			{"customer_id": "C002", "sale_amount": 75.5},
		},
		errAt: 1,
		err:   fmt.Errorf("corrupt row"),
	}
	sink := &captureSink{}

	pipeline, err := salesetl.NewPipeline().
		From(source).
		To(sink).
		Build()
	require.NoError(t, err)

	err = pipeline.Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt row")
	assert.Len(t, sink.records, 1)
}

func TestPipeline_SkipErrorsContinuesPastReadError(t *testing.T) {
	source := &sliceSource{
		records: []salesetl.Record{
			{"customer_id": "C001", "sale_amount": 150.0},
			{"customer_id": "C002", "sale_amount": 75.5},
		},
		errAt: 1,
		err:   fmt.Errorf("corrupt row"),
	}
	sink := &captureSink{}

	pipeline, err := salesetl.NewPipeline().
		From(source).
		To(sink).
		WithErrorStrategy(salesetl.SkipErrors).
		Build()
	require.NoError(t, err)

	require.NoError(t, pipeline.Execute(context.Background()))
	assert.Len(t, sink.records, 2)
}

func TestPipeline_ErrorHandlerReceivesFailures(t *testing.T) {
	source := &sliceSource{
		records: []salesetl.Record{{"customer_id": "C001", "sale_amount": 150.0}},
		errAt:   0,
		err:     fmt.Errorf("corrupt row"),
	}

	var handled []error
	pipeline, err := salesetl.NewPipeline().
		From(source).
		To(&captureSink{}).
		WithErrorStrategy(salesetl.CollectErrors).
		WithErrorHandler(salesetl.ErrorHandlerFunc(func(ctx context.Context, record salesetl.Record, err error) error {
			handled = append(handled, err)
			return nil
		})).
		Build()
	require.NoError(t, err)

	require.NoError(t, pipeline.Execute(context.Background()))
	require.Len(t, handled, 1)
	assert.Contains(t, handled[0].Error(), "corrupt row")
}

func TestPipeline_ContextCancellation(t *testing.T) {
	source := &sliceSource{records: []salesetl.Record{
		{"customer_id": "C001", "sale_amount": 150.0},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pipeline, err := salesetl.NewPipeline().
		From(source).
		To(&captureSink{}).
		Build()
	require.NoError(t, err)

	err = pipeline.Execute(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
