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
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dkellner/salesetl/core"
)

// S3Reader streams sales exports out of an S3 bucket. Stores drop
// their daily CSV or JSON extracts under a shared prefix; the reader
// lists the matching objects once, then reads them one after another
// as a single record stream. Each object is decoded by extension
// through the CSV or JSON reader.

// S3ReaderError wraps an S3 read failure with the operation that
// produced it.
type S3ReaderError struct {
	Op  string
	Err error
}

func (e *S3ReaderError) Error() string {
	return fmt.Sprintf("s3 reader %s: %v", e.Op, e.Err)
}

func (e *S3ReaderError) Unwrap() error {
	return e.Err
}

// S3ReaderStats reports listing and reading progress.
type S3ReaderStats struct {
	ObjectsListed  int64
	ObjectsRead    int64
	RecordsRead    int64
	ObjectErrors   int64
	ReadDuration   time.Duration
	LastReadTime   time.Time
	CurrentObject  string
	ProcessedFiles []string
}

// S3ReaderOptions configures which objects are read and how the
// client connects.
type S3ReaderOptions struct {
	Bucket          string
	Prefix          string
	Suffix          string
	MaxKeys         int32
	Region          string
	Profile         string
	Credentials     aws.Credentials
	EndpointURL     string // S3-compatible stores such as MinIO
	ForcePathStyle  bool
	Recursive       bool
	SortOrder       SortOrder
	IncludeMetadata bool // annotate records with _s3_* fields
}

// SortOrder controls the order objects are processed in.
type SortOrder string

const (
	SortByName         SortOrder = "name"
	SortByLastModified SortOrder = "last_modified"
	SortBySize         SortOrder = "size"
	SortNone           SortOrder = "none"
)

// ReaderOptionS3 configures an S3Reader.
type ReaderOptionS3 func(*S3ReaderOptions)

func WithS3Bucket(bucket string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Bucket = bucket
	}
}

func WithS3Prefix(prefix string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Prefix = prefix
	}
}

func WithS3Suffix(suffix string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Suffix = suffix
	}
}

func WithS3Region(region string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Region = region
	}
}

func WithS3Profile(profile string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Profile = profile
	}
}

func WithS3Credentials(creds aws.Credentials) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Credentials = creds
	}
}

func WithS3Endpoint(endpoint string) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.EndpointURL = endpoint
	}
}

func WithS3PathStyle(pathStyle bool) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.ForcePathStyle = pathStyle
	}
}

func WithS3MaxKeys(maxKeys int32) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.MaxKeys = maxKeys
	}
}

func WithS3Recursive(recursive bool) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.Recursive = recursive
	}
}

func WithS3SortOrder(order SortOrder) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.SortOrder = order
	}
}

func WithS3IncludeMetadata(include bool) ReaderOptionS3 {
	return func(opts *S3ReaderOptions) {
		opts.IncludeMetadata = include
	}
}

// S3Object describes one listed export file.
type S3Object struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
	Metadata     map[string]string
}

// S3Reader implements core.DataSource over a listing of S3 objects.
type S3Reader struct {
	client  *s3.Client
	objects []S3Object
	next    int
	current core.DataSource
	stats   S3ReaderStats
	opts    S3ReaderOptions
	mu      sync.RWMutex
}

// NewS3Reader lists the matching objects in the bucket and returns a
// reader over them. A bucket is required; everything else has
// defaults.
func NewS3Reader(options ...ReaderOptionS3) (*S3Reader, error) {
	opts := S3ReaderOptions{
		MaxKeys:   1000,
		SortOrder: SortByName,
		Recursive: true,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.Bucket == "" {
		return nil, &S3ReaderError{Op: "validate_options", Err: fmt.Errorf("bucket is required")}
	}

	cfg, err := loadAWSConfig(opts)
	if err != nil {
		return nil, &S3ReaderError{Op: "create_aws_config", Err: err}
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
		o.UsePathStyle = opts.ForcePathStyle
	})

	reader := &S3Reader{client: client, opts: opts}
	if err := reader.listObjects(context.Background()); err != nil {
		return nil, &S3ReaderError{Op: "list_objects", Err: err}
	}
	return reader, nil
}

// NewDailyExportsReader reads the per-store daily sale exports under a
// prefix. Exports are CSV files and are replayed in upload order, so a
// re-run processes the day's files the same way the nightly job did.
func NewDailyExportsReader(bucket, prefix string, options ...ReaderOptionS3) (*S3Reader, error) {
	base := []ReaderOptionS3{
		WithS3Bucket(bucket),
		WithS3Prefix(prefix),
		WithS3Suffix(".csv"),
		WithS3SortOrder(SortByLastModified),
	}
	return NewS3Reader(append(base, options...)...)
}

// Read returns the next record, moving to the next object when the
// current one is exhausted. Objects that fail to open are counted and
// skipped.
func (s *S3Reader) Read(ctx context.Context) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() {
		s.stats.ReadDuration += time.Since(start)
		s.stats.LastReadTime = time.Now()
	}()

	select {
	case <-ctx.Done():
		return nil, &S3ReaderError{Op: "read", Err: ctx.Err()}
	default:
	}

	for {
		for s.current == nil {
			if s.next >= len(s.objects) {
				return nil, io.EOF
			}
			if err := s.openObject(ctx, s.objects[s.next]); err != nil {
				s.stats.ObjectErrors++
				s.next++
			}
		}

		record, err := s.current.Read(ctx)
		if err == io.EOF {
			s.advance()
			continue
		}
		if err != nil {
			return nil, &S3ReaderError{Op: "read_record", Err: err}
		}

		if s.opts.IncludeMetadata {
			s.annotate(record, s.objects[s.next])
		}
		s.stats.RecordsRead++
		return record, nil
	}
}

// annotate adds _s3_* metadata fields describing obj to the record.
func (s *S3Reader) annotate(record core.Record, obj S3Object) {
	record["_s3_key"] = obj.Key
	record["_s3_size"] = obj.Size
	record["_s3_last_modified"] = obj.LastModified
	record["_s3_etag"] = obj.ETag
	for k, v := range obj.Metadata {
		record["_s3_meta_"+k] = v
	}
}

// Close implements the core.DataSource interface.
func (s *S3Reader) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advance()
}

// Stats returns reader progress statistics.
func (s *S3Reader) Stats() S3ReaderStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Objects returns the listed objects in processing order.
func (s *S3Reader) Objects() []S3Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objects
}

func loadAWSConfig(opts S3ReaderOptions) (aws.Config, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := config.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return aws.Config{}, err
	}
	if opts.Credentials.AccessKeyID != "" {
		cfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(
				opts.Credentials.AccessKeyID,
				opts.Credentials.SecretAccessKey,
				opts.Credentials.SessionToken,
			),
		)
	}
	return cfg, nil
}

func (s *S3Reader) listObjects(ctx context.Context) error {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.opts.Bucket),
		MaxKeys: &s.opts.MaxKeys,
	}
	if s.opts.Prefix != "" {
		input.Prefix = aws.String(s.opts.Prefix)
	}

	var objects []S3Object
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if !s.wantKey(*obj.Key) {
				continue
			}
			listed := S3Object{
				Key:          *obj.Key,
				Size:         *obj.Size,
				LastModified: *obj.LastModified,
				ETag:         strings.Trim(*obj.ETag, "\""),
			}
			if s.opts.IncludeMetadata {
				if metadata, err := s.headObjectMetadata(ctx, listed.Key); err == nil {
					listed.Metadata = metadata
				}
			}
			objects = append(objects, listed)
		}
	}

	sortObjects(objects, s.opts.SortOrder)
	s.objects = objects
	s.stats.ObjectsListed = int64(len(objects))
	return nil
}

func (s *S3Reader) wantKey(key string) bool {
	if s.opts.Suffix != "" && !strings.HasSuffix(key, s.opts.Suffix) {
		return false
	}
	if !s.opts.Recursive && strings.Contains(strings.TrimPrefix(key, s.opts.Prefix), "/") {
		return false
	}
	return true
}

func (s *S3Reader) headObjectMetadata(ctx context.Context, key string) (map[string]string, error) {
	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	return result.Metadata, nil
}

func sortObjects(objects []S3Object, order SortOrder) {
	switch order {
	case SortByName:
		sort.Slice(objects, func(i, j int) bool {
			return objects[i].Key < objects[j].Key
		})
	case SortByLastModified:
		sort.Slice(objects, func(i, j int) bool {
			return objects[i].LastModified.Before(objects[j].LastModified)
		})
	case SortBySize:
		sort.Slice(objects, func(i, j int) bool {
			return objects[i].Size < objects[j].Size
		})
	}
}

func (s *S3Reader) openObject(ctx context.Context, obj S3Object) error {
	s.stats.CurrentObject = obj.Key

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(obj.Key),
	})
	if err != nil {
		return fmt.Errorf("failed to get object %s: %w", obj.Key, err)
	}

	decoder, err := decoderForKey(obj.Key, result.Body)
	if err != nil {
		result.Body.Close()
		return fmt.Errorf("failed to create reader for %s: %w", obj.Key, err)
	}

	s.current = decoder
	s.stats.ObjectsRead++
	s.stats.ProcessedFiles = append(s.stats.ProcessedFiles, obj.Key)
	return nil
}

// decoderForKey picks a record decoder from the object's extension.
// Store exports are CSV; the event gateway dumps JSON lines, often
// without an extension.
func decoderForKey(key string, body io.ReadCloser) (core.DataSource, error) {
	switch strings.ToLower(filepath.Ext(key)) {
	case ".csv":
		return NewCSVReader(body, WithCSVHasHeaders(true))
	default:
		return NewJSONReader(body), nil
	}
}

// advance closes the current decoder and steps to the next object.
func (s *S3Reader) advance() error {
	if s.current == nil {
		return nil
	}
	err := s.current.Close()
	s.current = nil
	s.next++
	return err
}
