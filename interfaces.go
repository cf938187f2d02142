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

package salesetl

import (
	"github.com/dkellner/salesetl/core"
)

// Package salesetl defines the public surface of the SalesETL library.
//
// The canonical definitions live in the core package; these aliases let
// callers and the subpackages (readers, writers, aggregate, revenue)
// interoperate without importing core directly.

// Record represents a single data record in the pipeline.
type Record = core.Record

// DataSource defines the interface for data extraction.
type DataSource = core.DataSource

// DataSink defines the interface for data loading.
type DataSink = core.DataSink

// Transformer defines the interface for data transformation operations.
type Transformer = core.Transformer

// TransformFunc is a function adapter for the Transformer interface.
type TransformFunc = core.TransformFunc

// Filter defines the interface for record filtering.
type Filter = core.Filter

// FilterFunc is a function adapter for the Filter interface.
type FilterFunc = core.FilterFunc

// Aggregator defines the interface for single-result accumulation.
type Aggregator = core.Aggregator

// GroupAggregator defines the interface for grouped accumulation.
type GroupAggregator = core.GroupAggregator

// ErrorStrategy defines how to handle transformation errors in the pipeline.
type ErrorStrategy = core.ErrorStrategy

const (
	// FailFast stops processing on the first error encountered.
	FailFast = core.FailFast
	// SkipErrors continues processing, skipping failed records.
	SkipErrors = core.SkipErrors
	// CollectErrors continues processing, collecting all errors for later inspection.
	CollectErrors = core.CollectErrors
)

// ErrorHandler defines how errors are handled during processing.
type ErrorHandler = core.ErrorHandler

// ErrorHandlerFunc is a function adapter for the ErrorHandler interface.
type ErrorHandlerFunc = core.ErrorHandlerFunc
