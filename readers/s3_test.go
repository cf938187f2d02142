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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3ReaderRequiresBucket(t *testing.T) {
	_, err := NewS3Reader(WithS3Prefix("daily/"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket is required")
}

func TestSortObjects(t *testing.T) {
	day := func(d int) time.Time {
		return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC)
	}
	exports := func() []S3Object {
		return []S3Object{
			{Key: "daily/s406.csv", Size: 300, LastModified: day(3)},
			{Key: "daily/s404.csv", Size: 100, LastModified: day(1)},
			{Key: "daily/s405.csv", Size: 200, LastModified: day(2)},
		}
	}

	byName := exports()
	sortObjects(byName, SortByName)
	assert.Equal(t, "daily/s404.csv", byName[0].Key)
	assert.Equal(t, "daily/s406.csv", byName[2].Key)

	byTime := exports()
	sortObjects(byTime, SortByLastModified)
	assert.Equal(t, day(1), byTime[0].LastModified)
	assert.Equal(t, day(3), byTime[2].LastModified)

	bySize := exports()
	sortObjects(bySize, SortBySize)
	assert.Equal(t, int64(100), bySize[0].Size)
	assert.Equal(t, int64(300), bySize[2].Size)

	unsorted := exports()
	sortObjects(unsorted, SortNone)
	assert.Equal(t, "daily/s406.csv", unsorted[0].Key)
}

func TestS3KeyFiltering(t *testing.T) {
	reader := &S3Reader{opts: S3ReaderOptions{
		Prefix:    "daily/",
		Suffix:    ".csv",
		Recursive: true,
	}}

	assert.True(t, reader.wantKey("daily/s404.csv"))
	assert.False(t, reader.wantKey("daily/s404.json"))
	assert.True(t, reader.wantKey("daily/2025/s404.csv"))

	reader.opts.Recursive = false
	assert.False(t, reader.wantKey("daily/2025/s404.csv"))
	assert.True(t, reader.wantKey("daily/s404.csv"))
}

type stringObject struct {
	*strings.Reader
}

func (stringObject) Close() error { return nil }

func TestDecoderForKey(t *testing.T) {
	ctx := context.Background()

	csvBody := stringObject{strings.NewReader("customer_id,sale_amount\nC001,19.99\n")}
	decoder, err := decoderForKey("daily/s404.csv", csvBody)
	require.NoError(t, err)
	record, err := decoder.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "C001", record["customer_id"])

	// Gateway dumps are JSON lines without an extension.
	jsonBody := stringObject{strings.NewReader(`{"customer_id":"C002","sale_amount":5.0}` + "\n")}
	decoder, err = decoderForKey("events/2025-01-05", jsonBody)
	require.NoError(t, err)
	record, err = decoder.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "C002", record["customer_id"])

	_, err = decoder.Read(ctx)
	assert.Equal(t, io.EOF, err)
}
