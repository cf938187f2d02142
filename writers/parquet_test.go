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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkellner/salesetl"
)

func archivedSale(txn int64, customer string, amount float64) salesetl.Record {
	return salesetl.Record{
		"transaction_id": txn,
		"customer_id":    customer,
		"sale_amount":    amount,
		"refunded":       false,
	}
}

func TestParquetWriter_ArchivesSales(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fact_sales.parquet")

	writer, err := NewParquetWriter(path, WithBatchSize(2))
	require.NoError(t, err)

	ctx := context.Background()
	sales := []salesetl.Record{
		archivedSale(1001, "C001", 95.5),
		archivedSale(1002, "C002", 87.2),
		archivedSale(1003, "C003", 92.8),
	}
	for _, sale := range sales {
		require.NoError(t, writer.Write(ctx, sale))
	}

	stats := writer.Stats()
	assert.Equal(t, int64(3), stats.RecordsWritten)
	assert.Greater(t, stats.BatchesWritten, int64(0))

	require.NoError(t, writer.Close())

	// The archive should be readable and hold every sale.
	reader, err := file.OpenParquetFile(path, false)
	require.NoError(t, err)
	defer reader.Close()
	assert.Equal(t, int64(len(sales)), reader.NumRows())
	assert.Equal(t, 4, reader.MetaData().Schema.NumColumns())
}

func TestParquetWriter_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defaults.parquet")

	writer, err := NewParquetWriter(path)
	require.NoError(t, err)
	defer writer.Close()

	assert.Equal(t, int64(1000), writer.opts.BatchSize)
	assert.Equal(t, int64(10000), writer.opts.RowGroupSize)
	assert.Equal(t, compress.Codecs.Snappy, writer.opts.Compression)
	assert.False(t, writer.opts.ValidateSchema)
}

func TestParquetWriter_OptionsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.parquet")

	order := []string{"transaction_id", "customer_id", "sale_date"}
	writer, err := NewParquetWriter(path,
		WithBatchSize(10),
		WithCompression(compress.Codecs.Gzip),
		WithFieldOrder(order),
		WithSchemaValidation(true),
		WithRowGroupSize(1000),
		WithMetadata(map[string]string{"source": "fact_sales"}),
	)
	require.NoError(t, err)
	defer writer.Close()

	assert.Equal(t, int64(10), writer.opts.BatchSize)
	assert.Equal(t, compress.Codecs.Gzip, writer.opts.Compression)
	assert.True(t, writer.opts.ValidateSchema)
	assert.Equal(t, int64(1000), writer.opts.RowGroupSize)
	assert.Equal(t, "fact_sales", writer.opts.Metadata["source"])

	// The writer keeps its own copy of the field order.
	order[0] = "mutated"
	assert.Equal(t, "transaction_id", writer.opts.FieldOrder[0])
}

func TestParquetWriter_MetadataOnSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.parquet")

	writer, err := NewParquetWriter(path,
		WithMetadata(map[string]string{"source": "fact_sales", "job": "nightly_archive"}),
	)
	require.NoError(t, err)
	defer writer.Close()

	require.NoError(t, writer.Write(context.Background(), archivedSale(1, "C001", 10)))

	md := writer.schema.Metadata()
	assert.GreaterOrEqual(t, md.FindKey("source"), 0)
	assert.GreaterOrEqual(t, md.FindKey("job"), 0)
}

func TestArrowTypeInference(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  arrow.DataType
	}{
		{"bool", true, arrow.FixedWidthTypes.Boolean},
		{"small int", 42, arrow.PrimitiveTypes.Int32},
		{"large int", int(1) << 40, arrow.PrimitiveTypes.Int64},
		{"int64", int64(42), arrow.PrimitiveTypes.Int64},
		{"float32", float32(3.5), arrow.PrimitiveTypes.Float32},
		{"float64", 19.99, arrow.PrimitiveTypes.Float64},
		{"string", "C001", arrow.BinaryTypes.String},
		{"time", time.Now(), arrow.FixedWidthTypes.Timestamp_us},
		{"bytes", []byte{1, 2}, arrow.BinaryTypes.Binary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := arrowTypeOf(tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := arrowTypeOf(struct{}{})
	assert.Error(t, err)
}

func TestParquetWriter_NullTracking(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nulls.parquet")

	writer, err := NewParquetWriter(path, WithBatchSize(2))
	require.NoError(t, err)
	defer writer.Close()

	ctx := context.Background()
	extract := []salesetl.Record{
		{"transaction_id": int64(1), "customer_id": "C001", "campaign_id": nil},
		{"transaction_id": int64(2), "customer_id": nil, "campaign_id": int64(7)},
		{"transaction_id": nil, "customer_id": "C003", "campaign_id": int64(8)},
	}
	for _, row := range extract {
		require.NoError(t, writer.Write(ctx, row))
	}
	require.NoError(t, writer.Flush())

	stats := writer.Stats()
	assert.Equal(t, int64(3), stats.RecordsWritten)
	assert.Equal(t, int64(1), stats.NullValueCounts["campaign_id"])
	assert.Equal(t, int64(1), stats.NullValueCounts["customer_id"])
	assert.Equal(t, int64(1), stats.NullValueCounts["transaction_id"])
}

func TestParquetWriter_MissingFieldsBecomeNulls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.parquet")

	writer, err := NewParquetWriter(path,
		WithFieldOrder([]string{"transaction_id", "customer_id", "store_id", "sale_amount"}),
		WithBatchSize(2),
	)
	require.NoError(t, err)
	defer writer.Close()

	ctx := context.Background()
	extract := []salesetl.Record{
		{"transaction_id": int64(1), "customer_id": "C001", "store_id": "S404"},
		{"transaction_id": int64(2), "customer_id": "C002", "sale_amount": 30.0},
		{"customer_id": "C003", "store_id": "S406", "sale_amount": 25.0},
	}
	for _, row := range extract {
		require.NoError(t, writer.Write(ctx, row))
	}
	require.NoError(t, writer.Flush())

	stats := writer.Stats()
	assert.Equal(t, int64(3), stats.RecordsWritten)
	assert.Equal(t, int64(1), stats.NullValueCounts["sale_amount"])
	assert.Equal(t, int64(1), stats.NullValueCounts["store_id"])
}

func TestParquetWriter_WrongTypeWrittenAsNull(t *testing.T) {
	// Without strict validation, a stray string in a numeric column is
	// counted as a null instead of failing the archive run.
	path := filepath.Join(t.TempDir(), "stray.parquet")

	writer, err := NewParquetWriter(path, WithBatchSize(10))
	require.NoError(t, err)
	defer writer.Close()

	ctx := context.Background()
	require.NoError(t, writer.Write(ctx, salesetl.Record{"transaction_id": int64(1)}))
	require.NoError(t, writer.Write(ctx, salesetl.Record{"transaction_id": "oops"}))
	require.NoError(t, writer.Flush())

	stats := writer.Stats()
	assert.Equal(t, int64(2), stats.RecordsWritten)
	assert.Equal(t, int64(1), stats.NullValueCounts["transaction_id"])
}

func TestParquetWriter_SchemaValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "validated.parquet")

	writer, err := NewParquetWriter(path,
		WithSchemaValidation(true),
		WithBatchSize(1),
	)
	require.NoError(t, err)
	defer writer.Close()

	ctx := context.Background()
	require.NoError(t, writer.Write(ctx, salesetl.Record{
		"transaction_id": int64(1),
		"customer_id":    "C001",
	}))

	err = writer.Write(ctx, salesetl.Record{
		"transaction_id": "not_a_number",
		"customer_id":    "C002",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestParquetWriter_WriteAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.parquet")

	writer, err := NewParquetWriter(path)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	err = writer.Write(context.Background(), archivedSale(1, "C001", 10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestParquetWriter_UnwritablePath(t *testing.T) {
	// A regular file where a directory is needed.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := NewParquetWriter(filepath.Join(blocker, "out.parquet"))
	require.Error(t, err)
}

func TestParquetWriter_CloseWithoutWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")

	writer, err := NewParquetWriter(path)
	require.NoError(t, err)
	require.NoError(t, writer.Flush())
	require.NoError(t, writer.Close())

	// Closing twice is a no-op.
	require.NoError(t, writer.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func BenchmarkParquetWriter_Write(b *testing.B) {
	path := filepath.Join(b.TempDir(), "bench.parquet")

	writer, err := NewParquetWriter(path, WithBatchSize(1000))
	if err != nil {
		b.Fatal(err)
	}
	defer writer.Close()

	ctx := context.Background()
	record := salesetl.Record{
		"transaction_id": int64(1),
		"customer_id":    "C001",
		"store_id":       "S404",
		"sale_amount":    95.5,
		"refunded":       false,
		"sale_date":      time.Now(),
	}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		record["transaction_id"] = int64(i)
		if err := writer.Write(ctx, record); err != nil {
			b.Fatal(err)
		}
	}
}
