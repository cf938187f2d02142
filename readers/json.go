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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dkellner/salesetl"
)

// JSONReaderError wraps structured error information for the JSON reader.
type JSONReaderError struct {
	Op  string
	Err error
}

func (e *JSONReaderError) Error() string {
	return fmt.Sprintf("json reader %s: %v", e.Op, e.Err)
}

func (e *JSONReaderError) Unwrap() error {
	return e.Err
}

// JSONReader implements DataSource for line-delimited JSON files.
type JSONReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	lines   int64
}

// NewJSONReader creates a new JSON reader for line-delimited JSON.
func NewJSONReader(r io.ReadCloser) *JSONReader {
	scanner := bufio.NewScanner(r)
	return &JSONReader{
		scanner: scanner,
		closer:  r,
	}
}

// Read implements the DataSource interface.
func (j *JSONReader) Read(ctx context.Context) (salesetl.Record, error) {
	select {
	case <-ctx.Done():
		return nil, &JSONReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	if !j.scanner.Scan() {
		if err := j.scanner.Err(); err != nil {
			return nil, &JSONReaderError{Op: "scan", Err: err}
		}
		return nil, io.EOF
	}

	j.lines++
	line := j.scanner.Bytes()
	var record salesetl.Record

	if err := json.Unmarshal(line, &record); err != nil {
		return nil, &JSONReaderError{Op: fmt.Sprintf("unmarshal_line_%d", j.lines), Err: err}
	}

	return record, nil
}

// Close implements the DataSource interface.
func (j *JSONReader) Close() error {
	if j.closer != nil {
		return j.closer.Close()
	}
	return nil
}
