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

package types

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkellner/salesetl"
	"github.com/dkellner/salesetl/revenue"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		want    ReportFormat
		wantErr bool
	}{
		{"csv", FormatCSV, false},
		{"", FormatCSV, false},
		{"JSON", FormatJSON, false},
		{" parquet ", FormatParquet, false},
		{"xml", FormatCSV, true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.name)
		if tt.wantErr {
			assert.Error(t, err, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestParseS3URL(t *testing.T) {
	bucket, key, ok := ParseS3URL("s3://acme-reports/daily/revenue.csv")
	require.True(t, ok)
	assert.Equal(t, "acme-reports", bucket)
	assert.Equal(t, "daily/revenue.csv", key)

	for _, target := range []string{
		"data/reports/revenue.csv",
		"s3://",
		"s3://bucket-only",
		"s3:///no-bucket",
	} {
		_, _, ok := ParseS3URL(target)
		assert.False(t, ok, target)
	}
}

func TestDestinationRouting(t *testing.T) {
	_, isS3 := Destination("s3://acme-reports/revenue.csv").(S3Destination)
	assert.True(t, isS3)

	_, isFile := Destination("data/reports/revenue.csv").(FileDestination)
	assert.True(t, isFile)
}

func TestFileDestinationCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revenue.csv")

	sink, err := FileDestination{Path: path}.NewSink(FormatCSV)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Write(ctx, salesetl.Record{
		revenue.FieldCustomerID:   "C001",
		revenue.FieldTotalRevenue: 199.99,
	}))
	require.NoError(t, sink.Flush())
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.HasPrefix(content, "customer_id,total_revenue"))
	assert.Contains(t, content, "C001")
}

func TestFileDestinationJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revenue.json")

	sink, err := FileDestination{Path: path}.NewSink(FormatJSON)
	require.NoError(t, err)

	require.NoError(t, sink.Write(context.Background(), salesetl.Record{
		revenue.FieldCustomerID:   "C001",
		revenue.FieldTotalRevenue: 199.99,
	}))
	require.NoError(t, sink.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"customer_id":"C001"`)
}
