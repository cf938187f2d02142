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

// Package types routes finished reports to their destinations. A
// ReportDestination turns a format choice into a DataSink, so the
// aggregation pipeline does not care whether the revenue report lands
// on local disk, in an S3 bucket, or in a warehouse table.
package types

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	s3manager "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dkellner/salesetl"
	"github.com/dkellner/salesetl/revenue"
	"github.com/dkellner/salesetl/writers"
)

// ReportFormat selects the encoding of a written report.
type ReportFormat int

const (
	FormatCSV ReportFormat = iota
	FormatJSON
	FormatParquet
)

// ParseFormat maps a config string ("csv", "json", "parquet") to a
// ReportFormat.
func ParseFormat(name string) (ReportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "csv", "":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "parquet":
		return FormatParquet, nil
	default:
		return FormatCSV, fmt.Errorf("unsupported report format %q", name)
	}
}

// ReportDestination creates a sink for a revenue report.
type ReportDestination interface {
	NewSink(format ReportFormat) (salesetl.DataSink, error)
}

// reportHeaders is the column order for tabular report output.
var reportHeaders = []string{revenue.FieldCustomerID, revenue.FieldTotalRevenue}

// FileDestination writes the report to a local path.
type FileDestination struct {
	Path string
}

func (d FileDestination) NewSink(format ReportFormat) (salesetl.DataSink, error) {
	if format == FormatParquet {
		// The parquet writer manages its own file handle.
		return writers.NewParquetWriter(d.Path,
			writers.WithFieldOrder(reportHeaders))
	}

	file, err := os.Create(d.Path)
	if err != nil {
		return nil, fmt.Errorf("create report file: %w", err)
	}
	switch format {
	case FormatCSV:
		return writers.NewCSVWriter(file, writers.WithHeaders(reportHeaders))
	case FormatJSON:
		return writers.NewJSONWriter(file), nil
	default:
		file.Close()
		return nil, fmt.Errorf("unsupported report format for file destination")
	}
}

// S3Destination uploads the report to an object in a bucket once the
// sink is closed. Leaving Uploader nil loads the default AWS config.
type S3Destination struct {
	Bucket   string
	Key      string
	Uploader *s3manager.Uploader
}

// ParseS3URL splits an s3://bucket/key report target.
func ParseS3URL(url string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(url, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

func (d S3Destination) NewSink(format ReportFormat) (salesetl.DataSink, error) {
	uploader := d.Uploader
	if uploader == nil {
		cfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		uploader = s3manager.NewUploader(s3.NewFromConfig(cfg))
	}

	switch format {
	case FormatCSV:
		return writers.NewCSVWriter(
			newUploadBuffer(uploader, d.Bucket, d.Key),
			writers.WithHeaders(reportHeaders))
	case FormatJSON:
		return writers.NewJSONWriter(newUploadBuffer(uploader, d.Bucket, d.Key)), nil
	case FormatParquet:
		return newParquetUploadSink(uploader, d.Bucket, d.Key)
	default:
		return nil, fmt.Errorf("unsupported report format for s3 destination")
	}
}

// uploadBuffer accumulates report bytes in memory and ships them to S3
// on Close. Revenue reports are small (one row per customer), so
// buffering the whole object is fine.
type uploadBuffer struct {
	buf      bytes.Buffer
	uploader *s3manager.Uploader
	bucket   string
	key      string
}

func newUploadBuffer(uploader *s3manager.Uploader, bucket, key string) *uploadBuffer {
	return &uploadBuffer{uploader: uploader, bucket: bucket, key: key}
}

func (u *uploadBuffer) Write(p []byte) (int, error) {
	return u.buf.Write(p)
}

func (u *uploadBuffer) Close() error {
	_, err := u.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: &u.bucket,
		Key:    &u.key,
		Body:   bytes.NewReader(u.buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("upload report to s3://%s/%s: %w", u.bucket, u.key, err)
	}
	return nil
}

// parquetUploadSink writes parquet to a temp file, then uploads it on
// Close. The arrow writer needs a seekable file, so memory buffering is
// not an option here.
type parquetUploadSink struct {
	*writers.ParquetWriter
	uploader *s3manager.Uploader
	bucket   string
	key      string
	tmpPath  string
}

func newParquetUploadSink(uploader *s3manager.Uploader, bucket, key string) (*parquetUploadSink, error) {
	tmp, err := os.CreateTemp("", "revenue-report-*.parquet")
	if err != nil {
		return nil, fmt.Errorf("create report temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	pw, err := writers.NewParquetWriter(tmpPath, writers.WithFieldOrder(reportHeaders))
	if err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	return &parquetUploadSink{
		ParquetWriter: pw,
		uploader:      uploader,
		bucket:        bucket,
		key:           key,
		tmpPath:       tmpPath,
	}, nil
}

func (p *parquetUploadSink) Close() error {
	defer os.Remove(p.tmpPath)

	if err := p.ParquetWriter.Close(); err != nil {
		return err
	}
	file, err := os.Open(p.tmpPath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = p.uploader.Upload(context.Background(), &s3.PutObjectInput{
		Bucket: &p.bucket,
		Key:    &p.key,
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("upload report to s3://%s/%s: %w", p.bucket, p.key, err)
	}
	return nil
}

// Destination picks the right ReportDestination for a target string:
// s3://bucket/key uploads, anything else is a local path.
func Destination(target string) ReportDestination {
	if bucket, key, ok := ParseS3URL(target); ok {
		return S3Destination{Bucket: bucket, Key: key}
	}
	return FileDestination{Path: target}
}
