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
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/dkellner/salesetl"
)

// ParquetWriter archives prepared sales extracts and revenue reports as
// Parquet files. The Arrow schema is either given up front through
// options or inferred from the first record; every later record must
// fit it. Records are buffered and written in column batches.

// ParquetWriterError wraps a Parquet write failure with the operation
// that produced it.
type ParquetWriterError struct {
	Op  string
	Err error
}

func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// ParquetWriterOptions configures the Parquet writer.
type ParquetWriterOptions struct {
	BatchSize      int64                // records buffered per column batch
	Schema         *arrow.Schema        // optional, inferred when nil
	Compression    compress.Compression // codec for data pages
	FieldOrder     []string             // column order, first record's sorted keys when nil
	RowGroupSize   int64                // max rows per row group
	Metadata       map[string]string    // key/value metadata stored in the file
	ValidateSchema bool                 // reject records whose values do not match the schema
}

// WriterStats reports what the writer has done so far.
type WriterStats struct {
	RecordsWritten  int64
	BatchesWritten  int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// WriterOption configures a ParquetWriter.
type WriterOption func(*ParquetWriterOptions)

// WithBatchSize sets how many records are buffered before a column
// batch is written.
func WithBatchSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCompression selects the Parquet compression codec.
func WithCompression(compression compress.Compression) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
	}
}

// WithFieldOrder pins the column order. Reports use this so
// customer_id always comes before total_revenue regardless of map
// iteration order.
func WithFieldOrder(fields []string) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.FieldOrder = append([]string(nil), fields...)
	}
}

// WithSchemaValidation rejects records whose values do not match the
// inferred or configured schema instead of writing them as nulls.
func WithSchemaValidation(validate bool) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.ValidateSchema = validate
	}
}

// WithRowGroupSize caps the number of rows per row group.
func WithRowGroupSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

// WithMetadata attaches key/value metadata to the file, for example the
// source table and the run timestamp of an archive job.
func WithMetadata(metadata map[string]string) WriterOption {
	return func(opts *ParquetWriterOptions) {
		if opts.Metadata == nil {
			opts.Metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			opts.Metadata[k] = v
		}
	}
}

// ParquetWriter implements salesetl.DataSink for Parquet files.
type ParquetWriter struct {
	file       *os.File
	writer     *pqarrow.FileWriter
	schema     *arrow.Schema
	fieldOrder []string
	builders   []array.Builder
	allocator  memory.Allocator
	pending    []salesetl.Record
	stats      WriterStats
	opts       *ParquetWriterOptions
	closed     bool
	failed     bool
}

// NewParquetWriter creates a Parquet writer for the given file path,
// creating parent directories as needed.
func NewParquetWriter(filename string, options ...WriterOption) (*ParquetWriter, error) {
	opts := defaultParquetOptions()
	for _, option := range options {
		option(opts)
	}

	if dir := filepath.Dir(filename); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &ParquetWriterError{
				Op:  "create_directory",
				Err: fmt.Errorf("failed to create directory %s: %w", dir, err),
			}
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return nil, &ParquetWriterError{
			Op:  "open_file",
			Err: fmt.Errorf("failed to create parquet file %s: %w", filename, err),
		}
	}

	return &ParquetWriter{
		file:       file,
		schema:     opts.Schema,
		fieldOrder: opts.FieldOrder,
		allocator:  memory.NewGoAllocator(),
		pending:    make([]salesetl.Record, 0, opts.BatchSize),
		stats:      WriterStats{NullValueCounts: make(map[string]int64)},
		opts:       opts,
	}, nil
}

func defaultParquetOptions() *ParquetWriterOptions {
	return &ParquetWriterOptions{
		BatchSize:    1000,
		RowGroupSize: 10000,
		Compression:  compress.Codecs.Snappy,
	}
}

// Stats returns the writer's statistics so far.
func (p *ParquetWriter) Stats() WriterStats {
	return p.stats
}

// Write buffers a record, flushing a column batch when the buffer is
// full. The first record fixes the schema unless one was configured.
func (p *ParquetWriter) Write(ctx context.Context, record salesetl.Record) error {
	if p.closed {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("parquet writer is closed")}
	}
	if p.failed {
		return &ParquetWriterError{Op: "write", Err: fmt.Errorf("writer is in error state")}
	}

	if p.writer == nil {
		if err := p.openFileWriter(record); err != nil {
			p.failed = true
			return err
		}
	}

	if p.opts.ValidateSchema {
		if err := p.validateRecord(record); err != nil {
			p.failed = true
			return &ParquetWriterError{
				Op:  "validate",
				Err: fmt.Errorf("record validation failed: %w", err),
			}
		}
	}

	p.pending = append(p.pending, record)
	p.stats.RecordsWritten++

	if int64(len(p.pending)) >= p.opts.BatchSize {
		if err := p.writePending(); err != nil {
			return &ParquetWriterError{
				Op:  "flush_batch",
				Err: fmt.Errorf("failed to flush batch: %w", err),
			}
		}
	}
	return nil
}

// Flush writes any buffered records to the file.
func (p *ParquetWriter) Flush() error {
	return p.writePending()
}

// Close flushes buffered records and releases the file and builders.
func (p *ParquetWriter) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	if len(p.pending) > 0 {
		if err := p.writePending(); err != nil {
			return &ParquetWriterError{
				Op:  "flush_remaining",
				Err: fmt.Errorf("failed to flush remaining records: %w", err),
			}
		}
	}

	for _, builder := range p.builders {
		if builder != nil {
			builder.Release()
		}
	}
	p.builders = nil

	if p.writer != nil {
		// Closing the pqarrow writer also closes the file.
		if err := p.writer.Close(); err != nil {
			return &ParquetWriterError{
				Op:  "close_writer",
				Err: fmt.Errorf("failed to close parquet writer: %w", err),
			}
		}
		p.writer = nil
		p.file = nil
		return nil
	}

	// No record ever arrived; close the empty file directly.
	if p.file != nil {
		err := p.file.Close()
		p.file = nil
		if err != nil {
			return &ParquetWriterError{Op: "close_file", Err: err}
		}
	}
	return nil
}

// openFileWriter fixes the schema (inferring it from the first record
// when none was configured) and creates the underlying pqarrow writer.
func (p *ParquetWriter) openFileWriter(first salesetl.Record) error {
	if p.schema == nil {
		schema, err := p.inferSchema(first)
		if err != nil {
			return err
		}
		p.schema = schema
	}
	if p.fieldOrder == nil {
		p.fieldOrder = make([]string, 0, len(p.schema.Fields()))
		for _, f := range p.schema.Fields() {
			p.fieldOrder = append(p.fieldOrder, f.Name)
		}
	}

	props := parquet.NewWriterProperties(
		parquet.WithCompression(p.opts.Compression),
		parquet.WithMaxRowGroupLength(p.opts.RowGroupSize),
	)
	writer, err := pqarrow.NewFileWriter(p.schema, p.file, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return &ParquetWriterError{
			Op:  "create_writer",
			Err: fmt.Errorf("failed to create parquet file writer: %w", err),
		}
	}
	p.writer = writer

	return p.initBuilders()
}

// inferSchema builds an Arrow schema from a record's values. Missing
// and null fields become nullable strings.
func (p *ParquetWriter) inferSchema(record salesetl.Record) (*arrow.Schema, error) {
	names := p.fieldOrder
	if names == nil {
		names = make([]string, 0, len(record))
		for name := range record {
			names = append(names, name)
		}
		sort.Strings(names)
		p.fieldOrder = names
	}

	fields := make([]arrow.Field, 0, len(names))
	for _, name := range names {
		dataType := arrow.DataType(arrow.BinaryTypes.String)
		if value, ok := record[name]; ok && value != nil {
			inferred, err := arrowTypeOf(value)
			if err != nil {
				return nil, &ParquetWriterError{
					Op:  "schema",
					Err: fmt.Errorf("failed to infer arrow type for field %s: %w", name, err),
				}
			}
			dataType = inferred
		}
		fields = append(fields, arrow.Field{Name: name, Type: dataType, Nullable: true})
	}

	var metadata *arrow.Metadata
	if len(p.opts.Metadata) > 0 {
		md := arrow.MetadataFrom(p.opts.Metadata)
		metadata = &md
	}
	return arrow.NewSchema(fields, metadata), nil
}

// arrowTypeOf maps the Go values a sales pipeline produces to Arrow
// types. CSV and JSON readers only emit a subset of these; int32 and
// float32 come from the PostgreSQL reader.
func arrowTypeOf(value interface{}) (arrow.DataType, error) {
	switch v := value.(type) {
	case bool:
		return arrow.FixedWidthTypes.Boolean, nil
	case int32:
		return arrow.PrimitiveTypes.Int32, nil
	case int64:
		return arrow.PrimitiveTypes.Int64, nil
	case int:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return arrow.PrimitiveTypes.Int32, nil
		}
		return arrow.PrimitiveTypes.Int64, nil
	case float32:
		return arrow.PrimitiveTypes.Float32, nil
	case float64:
		return arrow.PrimitiveTypes.Float64, nil
	case string:
		return arrow.BinaryTypes.String, nil
	case time.Time:
		return arrow.FixedWidthTypes.Timestamp_us, nil
	case []byte:
		return arrow.BinaryTypes.Binary, nil
	default:
		return nil, fmt.Errorf("unsupported type %T for value %v", value, value)
	}
}

func (p *ParquetWriter) initBuilders() error {
	p.builders = make([]array.Builder, len(p.fieldOrder))
	for i, name := range p.fieldOrder {
		indices := p.schema.FieldIndices(name)
		if len(indices) == 0 {
			return &ParquetWriterError{
				Op:  "initialize_builders",
				Err: fmt.Errorf("field %s not found in schema", name),
			}
		}
		p.builders[i] = array.NewBuilder(p.allocator, p.schema.Field(indices[0]).Type)
	}
	return nil
}

// writePending converts the buffered records to an Arrow record batch
// and writes it to the file.
func (p *ParquetWriter) writePending() error {
	if len(p.pending) == 0 {
		return nil
	}
	start := time.Now()

	batch, err := p.buildBatch(p.pending)
	if err != nil {
		return err
	}
	defer batch.Release()

	if err := p.writer.Write(batch); err != nil {
		p.failed = true
		return &ParquetWriterError{
			Op:  "write_batch",
			Err: fmt.Errorf("failed to write record batch: %w", err),
		}
	}

	p.pending = p.pending[:0]
	p.stats.BatchesWritten++
	p.stats.FlushDuration += time.Since(start)
	p.stats.LastFlushTime = time.Now()
	return nil
}

func (p *ParquetWriter) buildBatch(records []salesetl.Record) (arrow.Record, error) {
	for _, record := range records {
		for i, name := range p.fieldOrder {
			value, ok := record[name]
			if !ok || value == nil {
				p.builders[i].AppendNull()
				p.stats.NullValueCounts[name]++
				continue
			}
			if err := p.appendValue(p.builders[i], name, value); err != nil {
				return nil, &ParquetWriterError{
					Op:  "append_value",
					Err: fmt.Errorf("failed to append value for field %s: %w", name, err),
				}
			}
		}
	}

	columns := make([]arrow.Array, len(p.builders))
	for i, builder := range p.builders {
		columns[i] = builder.NewArray()
		defer columns[i].Release()
	}
	return array.NewRecord(p.schema, columns, int64(len(records))), nil
}

// appendValue appends one value to a column builder. A value of the
// wrong type for its column is written as null and counted, so one
// stray string in a numeric column does not abort a whole archive run.
func (p *ParquetWriter) appendValue(builder array.Builder, name string, value interface{}) error {
	appendNull := func() {
		builder.AppendNull()
		p.stats.NullValueCounts[name]++
	}

	switch b := builder.(type) {
	case *array.BooleanBuilder:
		if v, ok := value.(bool); ok {
			b.Append(v)
		} else {
			appendNull()
		}
	case *array.Int32Builder:
		switch v := value.(type) {
		case int32:
			b.Append(v)
		case int:
			if v < math.MinInt32 || v > math.MaxInt32 {
				return fmt.Errorf("int value %d out of range for int32 field %s", v, name)
			}
			b.Append(int32(v))
		default:
			appendNull()
		}
	case *array.Int64Builder:
		switch v := value.(type) {
		case int64:
			b.Append(v)
		case int:
			b.Append(int64(v))
		default:
			appendNull()
		}
	case *array.Float32Builder:
		switch v := value.(type) {
		case float32:
			b.Append(v)
		case float64:
			b.Append(float32(v))
		default:
			appendNull()
		}
	case *array.Float64Builder:
		switch v := value.(type) {
		case float64:
			b.Append(v)
		case float32:
			b.Append(float64(v))
		default:
			appendNull()
		}
	case *array.StringBuilder:
		if v, ok := value.(string); ok {
			b.Append(v)
		} else {
			b.Append(fmt.Sprintf("%v", value))
		}
	case *array.BinaryBuilder:
		if v, ok := value.([]byte); ok {
			b.Append(v)
		} else {
			appendNull()
		}
	case *array.TimestampBuilder:
		if v, ok := value.(time.Time); ok {
			b.Append(arrow.Timestamp(v.UnixMicro()))
		} else {
			appendNull()
		}
	default:
		return fmt.Errorf("unsupported builder type for field %s", name)
	}
	return nil
}

// validateRecord rejects values that do not match the schema. Missing
// fields are fine, they become nulls.
func (p *ParquetWriter) validateRecord(record salesetl.Record) error {
	for _, field := range p.schema.Fields() {
		value, ok := record[field.Name]
		if !ok || value == nil {
			continue
		}
		if !valueMatchesArrowType(field.Type.ID(), value) {
			return fmt.Errorf("field %s: value %v (%T) does not match column type %s",
				field.Name, value, value, field.Type)
		}
	}
	return nil
}

func valueMatchesArrowType(id arrow.Type, value interface{}) bool {
	switch id {
	case arrow.BOOL:
		_, ok := value.(bool)
		return ok
	case arrow.INT32:
		switch value.(type) {
		case int, int32:
			return true
		}
	case arrow.INT64:
		switch value.(type) {
		case int, int64:
			return true
		}
	case arrow.FLOAT32, arrow.FLOAT64:
		switch value.(type) {
		case float32, float64:
			return true
		}
	case arrow.STRING:
		_, ok := value.(string)
		return ok
	case arrow.BINARY:
		_, ok := value.([]byte)
		return ok
	case arrow.TIMESTAMP:
		_, ok := value.(time.Time)
		return ok
	}
	return false
}
