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
	"io"

	"github.com/dkellner/salesetl"
)

// JSONWriterError wraps JSON-specific write errors with context.
type JSONWriterError struct {
	Op  string
	Err error
}

func (e *JSONWriterError) Error() string {
	return fmt.Sprintf("json writer %s: %v", e.Op, e.Err)
}

func (e *JSONWriterError) Unwrap() error {
	return e.Err
}

// JSONWriter implements DataSink for line-delimited JSON files.
type JSONWriter struct {
	writer  io.Writer
	closer  io.Closer
	written int64
}

// NewJSONWriter creates a new JSON writer for line-delimited JSON output.
func NewJSONWriter(w io.WriteCloser) *JSONWriter {
	return &JSONWriter{
		writer: w,
		closer: w,
	}
}

// Write implements the DataSink interface.
func (j *JSONWriter) Write(ctx context.Context, record salesetl.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return &JSONWriterError{Op: "marshal", Err: err}
	}

	// Write JSON line
	if _, err := j.writer.Write(data); err != nil {
		return &JSONWriterError{Op: "write", Err: err}
	}

	// Write newline
	if _, err := j.writer.Write([]byte("\n")); err != nil {
		return &JSONWriterError{Op: "write_newline", Err: err}
	}

	j.written++
	return nil
}

// Flush implements the DataSink interface.
func (j *JSONWriter) Flush() error {
	if flusher, ok := j.writer.(interface{ Flush() error }); ok {
		return flusher.Flush()
	}
	return nil
}

// Close implements the DataSink interface.
func (j *JSONWriter) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}

// RecordsWritten returns the number of records written so far.
func (j *JSONWriter) RecordsWritten() int64 {
	return j.written
}
