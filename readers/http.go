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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dkellner/salesetl/core"
)

// HTTPReader pulls sale transactions from an HTTP API such as the
// store gateway. The gateway returns JSON pages shaped like
// {"transactions": [...], "next_cursor": "..."}; the reader walks the
// pages and hands the rows to the pipeline one record at a time. It
// handles bearer and basic auth, cursor/offset/page pagination,
// retries with backoff, and client-side rate limiting.

// HTTPReaderError wraps an HTTP read failure with the operation, the
// URL, and the status code when one was received.
type HTTPReaderError struct {
	Op         string
	StatusCode int
	URL        string
	Err        error
}

func (e *HTTPReaderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("http reader %s [%d] %s: %v", e.Op, e.StatusCode, e.URL, e.Err)
	}
	return fmt.Sprintf("http reader %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *HTTPReaderError) Unwrap() error {
	return e.Err
}

// HTTPReaderStats reports request and record progress.
type HTTPReaderStats struct {
	RequestCount    int64
	RecordsRead     int64
	BytesRead       int64
	RetryCount      int64
	RateLimitHits   int64
	ReadDuration    time.Duration
	LastReadTime    time.Time
	NullValueCounts map[string]int64
}

// AuthConfig configures request authentication.
type AuthConfig struct {
	Type          string // "bearer", "basic", "apikey", "custom"
	Token         string
	Username      string
	Password      string
	HeaderName    string // header carrying the API key
	HeaderValue   string
	QueryParam    string // query parameter carrying the API key
	CustomHeaders map[string]string
}

// PaginationConfig describes how the API pages its results.
type PaginationConfig struct {
	Type         string // "offset", "cursor", "page", "none"
	LimitParam   string
	OffsetParam  string
	PageParam    string
	CursorParam  string
	PageSize     int
	MaxPages     int    // 0 means unlimited
	NextURLField string // response field holding the full next-page URL
	CursorField  string // response field holding the next cursor
	TotalField   string // response field holding the total row count
	HasMoreField string // response field saying whether more pages exist
}

// HTTPReaderOptions configures the HTTP reader.
type HTTPReaderOptions struct {
	Method           string
	Headers          map[string]string
	QueryParams      map[string]string
	Body             io.Reader
	Auth             *AuthConfig
	Pagination       *PaginationConfig
	Timeout          time.Duration
	RetryAttempts    int
	RetryDelay       time.Duration
	RateLimit        time.Duration // minimum gap between requests
	ResponseFormat   string        // "json" or "jsonl"
	DataPath         string        // dotted path to the row array, e.g. "data.transactions"
	MaxResponseSize  int64
	FollowRedirects  bool
	ValidStatusCodes []int
	UserAgent        string
	CustomClient     *http.Client
}

// ReaderOptionHTTP configures an HTTPReader.
type ReaderOptionHTTP func(*HTTPReaderOptions)

func WithHTTPMethod(method string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Method = method
	}
}

func WithHTTPHeaders(headers map[string]string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		if opts.Headers == nil {
			opts.Headers = make(map[string]string)
		}
		for k, v := range headers {
			opts.Headers[k] = v
		}
	}
}

func WithHTTPQueryParams(params map[string]string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		if opts.QueryParams == nil {
			opts.QueryParams = make(map[string]string)
		}
		for k, v := range params {
			opts.QueryParams[k] = v
		}
	}
}

func WithHTTPAuth(auth *AuthConfig) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Auth = auth
	}
}

func WithHTTPBearerToken(token string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Auth = &AuthConfig{Type: "bearer", Token: token}
	}
}

func WithHTTPBasicAuth(username, password string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Auth = &AuthConfig{Type: "basic", Username: username, Password: password}
	}
}

func WithHTTPAPIKey(headerName, apiKey string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Auth = &AuthConfig{Type: "apikey", HeaderName: headerName, HeaderValue: apiKey}
	}
}

func WithHTTPPagination(pagination *PaginationConfig) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Pagination = pagination
	}
}

func WithHTTPTimeout(timeout time.Duration) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.Timeout = timeout
	}
}

func WithHTTPRetries(attempts int, delay time.Duration) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.RetryAttempts = attempts
		opts.RetryDelay = delay
	}
}

func WithHTTPRateLimit(delay time.Duration) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.RateLimit = delay
	}
}

func WithHTTPResponseFormat(format string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.ResponseFormat = format
	}
}

func WithHTTPDataPath(path string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.DataPath = path
	}
}

func WithHTTPUserAgent(userAgent string) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.UserAgent = userAgent
	}
}

func WithHTTPClient(client *http.Client) ReaderOptionHTTP {
	return func(opts *HTTPReaderOptions) {
		opts.CustomClient = client
	}
}

// HTTPReader implements core.DataSource over a paginated HTTP API.
type HTTPReader struct {
	baseURL  string
	client   *http.Client
	opts     *HTTPReaderOptions
	stats    HTTPReaderStats
	page     []core.Record
	pagePos  int
	pageNum  int
	cursor   string
	nextURL  string
	hasMore  bool
	lastReq  time.Time
}

// NewHTTPReader creates a reader for the given endpoint.
func NewHTTPReader(endpoint string, options ...ReaderOptionHTTP) (*HTTPReader, error) {
	opts := &HTTPReaderOptions{
		Method:           http.MethodGet,
		Timeout:          30 * time.Second,
		RetryAttempts:    3,
		RetryDelay:       time.Second,
		ResponseFormat:   "json",
		MaxResponseSize:  100 * 1024 * 1024,
		FollowRedirects:  true,
		ValidStatusCodes: []int{200, 201, 202},
		UserAgent:        "SalesETL-HTTPReader/1.0",
	}
	for _, option := range options {
		option(opts)
	}

	client := opts.CustomClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
		if !opts.FollowRedirects {
			client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			}
		}
	}

	return &HTTPReader{
		baseURL: endpoint,
		client:  client,
		opts:    opts,
		stats:   HTTPReaderStats{NullValueCounts: make(map[string]int64)},
		pageNum: 1,
		hasMore: true,
	}, nil
}

// NewStoreGatewayReader reads sale transactions from the store gateway
// API. The gateway pages with a cursor and nests its rows under
// "transactions".
func NewStoreGatewayReader(endpoint, token string, options ...ReaderOptionHTTP) (*HTTPReader, error) {
	base := []ReaderOptionHTTP{
		WithHTTPBearerToken(token),
		WithHTTPDataPath("transactions"),
		WithHTTPPagination(&PaginationConfig{
			Type:        "cursor",
			LimitParam:  "limit",
			CursorParam: "cursor",
			CursorField: "next_cursor",
			PageSize:    500,
		}),
	}
	return NewHTTPReader(endpoint, append(base, options...)...)
}

// Read returns the next transaction, fetching the next page when the
// current one is exhausted.
func (hr *HTTPReader) Read(ctx context.Context) (core.Record, error) {
	start := time.Now()
	defer func() {
		hr.stats.ReadDuration += time.Since(start)
		hr.stats.LastReadTime = time.Now()
	}()

	select {
	case <-ctx.Done():
		return nil, &HTTPReaderError{Op: "read", URL: hr.baseURL, Err: ctx.Err()}
	default:
	}

	for hr.pagePos >= len(hr.page) {
		if !hr.hasMore {
			return nil, io.EOF
		}
		if err := hr.fetchPage(ctx); err != nil {
			return nil, &HTTPReaderError{Op: "load_batch", URL: hr.baseURL, Err: err}
		}
	}

	record := hr.page[hr.pagePos]
	hr.pagePos++
	hr.stats.RecordsRead++
	for key, val := range record {
		if val == nil {
			hr.stats.NullValueCounts[key]++
		}
	}
	return record, nil
}

// Close implements the core.DataSource interface. The reader holds no
// open connections between pages.
func (hr *HTTPReader) Close() error {
	return nil
}

// Stats returns reader progress statistics.
func (hr *HTTPReader) Stats() HTTPReaderStats {
	return hr.stats
}

// fetchPage requests the next page and decodes it into records.
func (hr *HTTPReader) fetchPage(ctx context.Context) error {
	if hr.opts.RateLimit > 0 {
		if wait := hr.opts.RateLimit - time.Since(hr.lastReq); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	requestURL, err := hr.buildURL()
	if err != nil {
		return err
	}

	body, err := hr.requestWithRetry(ctx, requestURL)
	if err != nil {
		return err
	}
	hr.lastReq = time.Now()
	hr.stats.RequestCount++

	records, err := hr.decodeRows(body)
	if err != nil {
		return &HTTPReaderError{Op: "parse", URL: requestURL, Err: err}
	}
	hr.page = records
	hr.pagePos = 0

	hr.advancePagination(body)
	return nil
}

// buildURL assembles the request URL with query and pagination
// parameters.
func (hr *HTTPReader) buildURL() (string, error) {
	if hr.nextURL != "" {
		return hr.nextURL, nil
	}

	parsed, err := url.Parse(hr.baseURL)
	if err != nil {
		return "", &HTTPReaderError{Op: "build_url", URL: hr.baseURL, Err: err}
	}

	query := parsed.Query()
	for k, v := range hr.opts.QueryParams {
		query.Set(k, v)
	}

	if pg := hr.opts.Pagination; pg != nil {
		if pg.LimitParam != "" && pg.PageSize > 0 {
			query.Set(pg.LimitParam, strconv.Itoa(pg.PageSize))
		}
		switch pg.Type {
		case "offset":
			if pg.OffsetParam != "" {
				query.Set(pg.OffsetParam, strconv.Itoa((hr.pageNum-1)*pg.PageSize))
			}
		case "page":
			if pg.PageParam != "" {
				query.Set(pg.PageParam, strconv.Itoa(hr.pageNum))
			}
		case "cursor":
			if pg.CursorParam != "" && hr.cursor != "" {
				query.Set(pg.CursorParam, hr.cursor)
			}
		}
	}

	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// requestWithRetry retries rate-limited and server-error responses
// with exponential backoff. Other client errors fail immediately.
func (hr *HTTPReader) requestWithRetry(ctx context.Context, requestURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= hr.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := hr.opts.RetryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			hr.stats.RetryCount++
		}

		body, err := hr.doRequest(ctx, requestURL)
		if err == nil {
			return body, nil
		}
		lastErr = err

		httpErr, ok := err.(*HTTPReaderError)
		if !ok {
			continue
		}
		if httpErr.StatusCode == http.StatusTooManyRequests {
			hr.stats.RateLimitHits++
			continue
		}
		if httpErr.StatusCode >= 500 || httpErr.StatusCode == 0 {
			continue
		}
		break
	}
	return nil, lastErr
}

func (hr *HTTPReader) doRequest(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, hr.opts.Method, requestURL, hr.opts.Body)
	if err != nil {
		return nil, &HTTPReaderError{Op: "create_request", URL: requestURL, Err: err}
	}

	req.Header.Set("User-Agent", hr.opts.UserAgent)
	for k, v := range hr.opts.Headers {
		req.Header.Set(k, v)
	}
	if err := hr.applyAuth(req); err != nil {
		return nil, &HTTPReaderError{Op: "auth", URL: requestURL, Err: err}
	}

	resp, err := hr.client.Do(req)
	if err != nil {
		return nil, &HTTPReaderError{Op: "request", URL: requestURL, Err: err}
	}
	defer resp.Body.Close()

	if !hr.statusOK(resp.StatusCode) {
		return nil, &HTTPReaderError{
			Op:         "status_check",
			URL:        requestURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, hr.opts.MaxResponseSize))
	if err != nil {
		return nil, &HTTPReaderError{Op: "read_response", URL: requestURL, Err: err}
	}
	hr.stats.BytesRead += int64(len(body))
	return body, nil
}

func (hr *HTTPReader) applyAuth(req *http.Request) error {
	auth := hr.opts.Auth
	if auth == nil {
		return nil
	}
	switch auth.Type {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	case "basic":
		req.SetBasicAuth(auth.Username, auth.Password)
	case "apikey":
		if auth.HeaderName != "" {
			req.Header.Set(auth.HeaderName, auth.HeaderValue)
		}
		if auth.QueryParam != "" {
			q := req.URL.Query()
			q.Set(auth.QueryParam, auth.HeaderValue)
			req.URL.RawQuery = q.Encode()
		}
	case "custom":
		for k, v := range auth.CustomHeaders {
			req.Header.Set(k, v)
		}
	default:
		return fmt.Errorf("unsupported auth type: %s", auth.Type)
	}
	return nil
}

// decodeRows turns a response body into records.
func (hr *HTTPReader) decodeRows(body []byte) ([]core.Record, error) {
	switch hr.opts.ResponseFormat {
	case "json":
		return hr.decodeJSONRows(body)
	case "jsonl":
		return decodeJSONLines(body)
	default:
		return nil, fmt.Errorf("unsupported response format: %s", hr.opts.ResponseFormat)
	}
}

func (hr *HTTPReader) decodeJSONRows(body []byte) ([]core.Record, error) {
	var response interface{}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("json unmarshal failed: %w", err)
	}

	if hr.opts.DataPath != "" {
		extracted, err := walkPath(response, hr.opts.DataPath)
		if err != nil {
			return nil, fmt.Errorf("data path extraction failed: %w", err)
		}
		response = extracted
	}

	switch rows := response.(type) {
	case []interface{}:
		records := make([]core.Record, 0, len(rows))
		for _, item := range rows {
			if row, ok := item.(map[string]interface{}); ok {
				records = append(records, core.Record(row))
			}
		}
		return records, nil
	case map[string]interface{}:
		return []core.Record{core.Record(rows)}, nil
	default:
		return nil, fmt.Errorf("unexpected response format: %T", response)
	}
}

func decodeJSONLines(body []byte) ([]core.Record, error) {
	var records []core.Record
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var record core.Record
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, fmt.Errorf("jsonl parse error: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

// walkPath follows a dotted path through nested JSON objects.
func walkPath(data interface{}, path string) (interface{}, error) {
	current := data
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("cannot traverse path %s: expected object", part)
		}
		if current, ok = obj[part]; !ok {
			return nil, fmt.Errorf("path element %s not found", part)
		}
	}
	return current, nil
}

// advancePagination decides whether another page exists and where to
// find it.
func (hr *HTTPReader) advancePagination(body []byte) {
	pg := hr.opts.Pagination
	if pg == nil {
		hr.hasMore = false
		return
	}
	if pg.MaxPages > 0 && hr.pageNum >= pg.MaxPages {
		hr.hasMore = false
		return
	}

	var response map[string]interface{}
	if err := json.Unmarshal(body, &response); err != nil {
		hr.hasMore = false
		return
	}

	switch pg.Type {
	case "cursor":
		cursor, _ := response[pg.CursorField].(string)
		hr.cursor = cursor
		hr.hasMore = cursor != ""
	case "offset", "page":
		hr.pageNum++
		switch {
		case pg.HasMoreField != "":
			hasMore, _ := response[pg.HasMoreField].(bool)
			hr.hasMore = hasMore
		case pg.TotalField != "":
			total, ok := response[pg.TotalField].(float64)
			hr.hasMore = ok && (hr.pageNum-1)*pg.PageSize < int(total)
		default:
			// A short page means the data ran out.
			hr.hasMore = len(hr.page) >= pg.PageSize
		}
	default:
		hr.hasMore = false
	}

	if pg.NextURLField != "" {
		if nextURL, ok := response[pg.NextURLField].(string); ok {
			hr.nextURL = nextURL
			hr.hasMore = nextURL != ""
		}
	}
}

func (hr *HTTPReader) statusOK(statusCode int) bool {
	for _, valid := range hr.opts.ValidStatusCodes {
		if statusCode == valid {
			return true
		}
	}
	return false
}
