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

package readers

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func csvInput(data string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(data))
}

func TestCSVReader_BasicFunctionality(t *testing.T) {
	reader, err := NewCSVReader(csvInput(
		"transaction_id,customer_id,sale_amount,refunded\n" +
			"T1001,C001,150.00,false\n" +
			"T1002,C002,75.50,true\n"))
	require.NoError(t, err)
	defer reader.Close()

	ctx := context.Background()

	first, err := reader.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T1001", first["transaction_id"])
	assert.Equal(t, "C001", first["customer_id"])
	assert.Equal(t, 150.00, first["sale_amount"])
	assert.Equal(t, false, first["refunded"])

	second, err := reader.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "C002", second["customer_id"])
	assert.Equal(t, true, second["refunded"])

	_, err = reader.Read(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestCSVReader_TypeInference(t *testing.T) {
	reader, err := NewCSVReader(csvInput(
		"quantity,sale_amount,store_id,active\n" +
			"3,19.99,S404,true\n"))
	require.NoError(t, err)
	defer reader.Close()

	record, err := reader.Read(context.Background())
	require.NoError(t, err)

	assert.IsType(t, int(0), record["quantity"])
	assert.IsType(t, float64(0), record["sale_amount"])
	assert.IsType(t, "", record["store_id"])
	assert.IsType(t, false, record["active"])
}

func TestCSVReader_EmptyFieldsBecomeNull(t *testing.T) {
	reader, err := NewCSVReader(csvInput(
		"transaction_id,customer_id,campaign_id\n" +
			"T1001,C001,\n" +
			"T1002,,CAMP7\n"))
	require.NoError(t, err)
	defer reader.Close()

	ctx := context.Background()

	first, err := reader.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, first["campaign_id"])

	second, err := reader.Read(ctx)
	require.NoError(t, err)
	assert.Nil(t, second["customer_id"])

	stats := reader.Stats()
	assert.Equal(t, int64(2), stats.RecordsRead)
	assert.Equal(t, int64(1), stats.NullValueCounts["campaign_id"])
	assert.Equal(t, int64(1), stats.NullValueCounts["customer_id"])
}

func TestCSVReader_NoHeaders(t *testing.T) {
	reader, err := NewCSVReader(csvInput("T1001,C001,150.00\n"),
		WithCSVHasHeaders(false),
	)
	require.NoError(t, err)
	defer reader.Close()

	record, err := reader.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T1001", record["col_0"])
	assert.Equal(t, "C001", record["col_1"])
	assert.Equal(t, 150.00, record["col_2"])
}

func TestCSVReader_CustomDelimiter(t *testing.T) {
	reader, err := NewCSVReader(csvInput(
		"customer_id;sale_amount\n"+
			"C001;150.00\n"),
		WithCSVComma(';'),
	)
	require.NoError(t, err)
	defer reader.Close()

	record, err := reader.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "C001", record["customer_id"])
	assert.Equal(t, 150.00, record["sale_amount"])
}

func TestCSVReader_MalformedRow(t *testing.T) {
	reader, err := NewCSVReader(csvInput(
		"transaction_id,customer_id,sale_amount\n" +
			"T1001,C001,150.00\n" +
			"T1002,C002\n" +
			"T1003,C003,49.99\n"))
	require.NoError(t, err)
	defer reader.Close()

	ctx := context.Background()

	_, err = reader.Read(ctx)
	require.NoError(t, err)

	_, err = reader.Read(ctx)
	require.Error(t, err)
	var csvErr *CSVReaderError
	require.ErrorAs(t, err, &csvErr)
	assert.Equal(t, "read_record", csvErr.Op)

	// The reader stays usable past the malformed row.
	record, err := reader.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "C003", record["customer_id"])
}

func TestCSVReader_EmptyInput(t *testing.T) {
	reader, err := NewCSVReader(csvInput("transaction_id,customer_id,sale_amount\n"))
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.Read(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestCSVReader_MissingHeaders(t *testing.T) {
	_, err := NewCSVReader(csvInput(""))
	require.Error(t, err)
	var csvErr *CSVReaderError
	require.ErrorAs(t, err, &csvErr)
	assert.Equal(t, "read_headers", csvErr.Op)
}

func TestCSVReader_ContextCancellation(t *testing.T) {
	reader, err := NewCSVReader(csvInput(
		"customer_id,sale_amount\n" +
			"C001,150.00\n"))
	require.NoError(t, err)
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = reader.Read(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
