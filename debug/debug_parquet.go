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

// Inspect a sales archive or revenue report written by the Parquet
// writer: row counts, column layout, row groups, file metadata, and a
// few sample rows. Handy when an archive job produced a file a
// downstream consumer refuses to load.
//
//	go run ./debug fact_sales_archive.parquet
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/apache/arrow/go/v12/parquet/file"

	"github.com/dkellner/salesetl/readers"
)

const sampleRows = 5

func main() {
	path := "../examples/sales_prepared.parquet"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	fmt.Printf("Inspecting %s\n", path)

	reader, err := file.OpenParquetFile(path, false)
	if err != nil {
		log.Fatalf("Failed to open file: %v", err)
	}

	meta := reader.MetaData()
	fmt.Printf("Rows: %d in %d row group(s)\n", reader.NumRows(), reader.NumRowGroups())
	for i := 0; i < reader.NumRowGroups(); i++ {
		fmt.Printf("  row group %d: %d rows\n", i, reader.RowGroup(i).NumRows())
	}

	fmt.Printf("Columns (%d):\n", meta.Schema.NumColumns())
	for i := 0; i < meta.Schema.NumColumns(); i++ {
		col := meta.Schema.Column(i)
		fmt.Printf("  %s (%s)\n", col.Name(), col.PhysicalType())
	}

	if kv := meta.KeyValueMetadata(); kv != nil {
		for _, key := range []string{"source", "job", "created_by", "created_at"} {
			if value := kv.FindValue(key); value != nil {
				fmt.Printf("Metadata %s: %s\n", key, *value)
			}
		}
	}
	if err := reader.Close(); err != nil {
		log.Printf("Warning: failed to close metadata reader: %v", err)
	}

	// Replay the first few rows through the same reader the pipelines
	// use, so what is printed is what a pipeline would see.
	sample, err := readers.NewParquetReader(path, readers.WithBatchSize(sampleRows))
	if err != nil {
		log.Fatalf("Failed to open record reader: %v", err)
	}
	defer sample.Close()

	ctx := context.Background()
	fmt.Printf("First %d row(s):\n", sampleRows)
	for i := 0; i < sampleRows; i++ {
		record, err := sample.Read(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("Failed to read record: %v", err)
		}
		fmt.Printf("  %+v\n", record)
	}
}
