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

package writers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkellner/salesetl"
)

// mockJSONWriteCloser captures writes and can simulate failures.
type mockJSONWriteCloser struct {
	data        strings.Builder
	writeError  error
	closeError  error
	flushCalled bool
	closed      bool
}

func (m *mockJSONWriteCloser) Write(p []byte) (int, error) {
	if m.writeError != nil {
		return 0, m.writeError
	}
	return m.data.WriteString(string(p))
}

func (m *mockJSONWriteCloser) Flush() error {
	m.flushCalled = true
	return nil
}

func (m *mockJSONWriteCloser) Close() error {
	m.closed = true
	return m.closeError
}

func TestJSONWriter_BasicFunctionality(t *testing.T) {
	mock := &mockJSONWriteCloser{}
	writer := NewJSONWriter(mock)

	ctx := context.Background()
	records := []salesetl.Record{
		{"transaction_id": "T1001", "customer_id": "C001", "sale_amount": 150.0},
		{"transaction_id": "T1002", "customer_id": "C002", "sale_amount": 75.5},
	}

	for _, record := range records {
		require.NoError(t, writer.Write(ctx, record))
	}
	require.NoError(t, writer.Close())

	lines := strings.Split(strings.TrimSpace(mock.data.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "C001", first["customer_id"])
	assert.Equal(t, 150.0, first["sale_amount"])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "C002", second["customer_id"])

	assert.True(t, mock.closed)
}

func TestJSONWriter_RevenueReportOutput(t *testing.T) {
	mock := &mockJSONWriteCloser{}
	writer := NewJSONWriter(mock)

	ctx := context.Background()
	totals := []salesetl.Record{
		{"customer_id": "C001", "total_revenue": 199.99},
		{"customer_id": "C002", "total_revenue": 75.5},
	}

	for _, record := range totals {
		require.NoError(t, writer.Write(ctx, record))
	}
	require.NoError(t, writer.Close())

	lines := strings.Split(strings.TrimSpace(mock.data.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var parsed map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &parsed))
		assert.Contains(t, parsed, "customer_id")
		assert.Contains(t, parsed, "total_revenue")
	}
}

func TestJSONWriter_WriteError(t *testing.T) {
	mock := &mockJSONWriteCloser{writeError: fmt.Errorf("disk full")}
	writer := NewJSONWriter(mock)

	err := writer.Write(context.Background(), salesetl.Record{"customer_id": "C001"})
	require.Error(t, err)

	var jsonErr *JSONWriterError
	require.ErrorAs(t, err, &jsonErr)
	assert.Equal(t, "write", jsonErr.Op)
	assert.Contains(t, err.Error(), "disk full")
}

func TestJSONWriter_MarshalError(t *testing.T) {
	mock := &mockJSONWriteCloser{}
	writer := NewJSONWriter(mock)

	// Channels cannot be marshaled to JSON.
	err := writer.Write(context.Background(), salesetl.Record{"bad": make(chan int)})
	require.Error(t, err)

	var jsonErr *JSONWriterError
	require.ErrorAs(t, err, &jsonErr)
	assert.Equal(t, "marshal", jsonErr.Op)
}

func TestJSONWriter_ErrorUnwrap(t *testing.T) {
	base := fmt.Errorf("underlying")
	err := &JSONWriterError{Op: "write", Err: base}

	assert.Equal(t, "json writer write: underlying", err.Error())
	assert.Equal(t, base, err.Unwrap())
}

func TestJSONWriter_FlushDelegates(t *testing.T) {
	mock := &mockJSONWriteCloser{}
	writer := NewJSONWriter(mock)

	require.NoError(t, writer.Flush())
	assert.True(t, mock.flushCalled)
}

func TestJSONWriter_CloseError(t *testing.T) {
	mock := &mockJSONWriteCloser{closeError: fmt.Errorf("close failed")}
	writer := NewJSONWriter(mock)

	err := writer.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close failed")
}

func TestJSONWriter_RecordsWritten(t *testing.T) {
	mock := &mockJSONWriteCloser{}
	writer := NewJSONWriter(mock)

	ctx := context.Background()
	assert.Equal(t, int64(0), writer.RecordsWritten())

	for i := 0; i < 5; i++ {
		require.NoError(t, writer.Write(ctx, salesetl.Record{"customer_id": fmt.Sprintf("C%03d", i)}))
	}
	assert.Equal(t, int64(5), writer.RecordsWritten())

	// Failed writes do not count.
	mock.writeError = fmt.Errorf("broken pipe")
	_ = writer.Write(ctx, salesetl.Record{"customer_id": "C999"})
	assert.Equal(t, int64(5), writer.RecordsWritten())
}

func TestJSONWriter_EmptyRecord(t *testing.T) {
	mock := &mockJSONWriteCloser{}
	writer := NewJSONWriter(mock)

	require.NoError(t, writer.Write(context.Background(), salesetl.Record{}))
	assert.Equal(t, "{}\n", mock.data.String())
}

func TestJSONWriter_NullValues(t *testing.T) {
	mock := &mockJSONWriteCloser{}
	writer := NewJSONWriter(mock)

	require.NoError(t, writer.Write(context.Background(), salesetl.Record{
		"customer_id": "C001",
		"campaign_id": nil,
	}))

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(mock.data.String())), &parsed))
	assert.Equal(t, "C001", parsed["customer_id"])
	assert.Nil(t, parsed["campaign_id"])
}

func BenchmarkJSONWriter_Write(b *testing.B) {
	mock := &mockJSONWriteCloser{}
	writer := NewJSONWriter(mock)
	ctx := context.Background()

	record := salesetl.Record{
		"transaction_id": "T1001",
		"customer_id":    "C001",
		"product_id":     "P042",
		"store_id":       "S404",
		"sale_amount":    150.0,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := writer.Write(ctx, record); err != nil {
			b.Fatal(err)
		}
	}
}
