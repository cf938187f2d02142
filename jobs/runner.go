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

// Package jobs sequences the stages of a sales ETL run. A Runner holds
// named tasks with declared dependencies and executes them in dependency
// order, running independent tasks concurrently. Typical use wires the
// prepare, warehouse load, and revenue aggregation stages into one run.
package jobs

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Task is a single unit of work in a run.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

type funcTask struct {
	name string
	fn   func(ctx context.Context) error
}

func (t *funcTask) Name() string                  { return t.name }
func (t *funcTask) Run(ctx context.Context) error { return t.fn(ctx) }

// NewTask wraps a function as a named Task.
func NewTask(name string, fn func(ctx context.Context) error) Task {
	return &funcTask{name: name, fn: fn}
}

// RetryPolicy controls how a failed task is retried. Delays grow
// exponentially from BaseDelay and are capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	delay := p.BaseDelay * time.Duration(1<<uint(attempt))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// TaskStatus describes the terminal state of a task within a run.
type TaskStatus int

const (
	StatusPending TaskStatus = iota
	StatusSucceeded
	StatusFailed
	StatusSkipped
)

func (s TaskStatus) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "pending"
	}
}

// TaskResult records the outcome of one task.
type TaskResult struct {
	Status   TaskStatus
	Attempts int
	Duration time.Duration
	Err      error
}

// RunResult summarizes a full run.
type RunResult struct {
	Started  time.Time
	Finished time.Time
	Tasks    map[string]TaskResult
}

// RunnerError wraps errors from run construction and execution.
type RunnerError struct {
	Op  string
	Err error
}

func (e *RunnerError) Error() string {
	return fmt.Sprintf("jobs runner %s: %v", e.Op, e.Err)
}

func (e *RunnerError) Unwrap() error {
	return e.Err
}

// Runner holds tasks and their dependencies and executes them in
// topological order. Tasks with no ordering between them run
// concurrently, bounded by the worker limit.
type Runner struct {
	tasks      map[string]Task
	deps       map[string][]string
	order      []string
	retries    map[string]RetryPolicy
	maxWorkers int
	logger     *logrus.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxWorkers bounds how many independent tasks run concurrently.
func WithMaxWorkers(workers int) RunnerOption {
	return func(r *Runner) {
		if workers > 0 {
			r.maxWorkers = workers
		}
	}
}

// WithLogger sets the logger used for task lifecycle events.
func WithLogger(logger *logrus.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates an empty Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		tasks:      make(map[string]Task),
		deps:       make(map[string][]string),
		retries:    make(map[string]RetryPolicy),
		maxWorkers: runtime.NumCPU(),
		logger:     logrus.StandardLogger(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Add registers a task with its dependencies. Registration order is
// preserved as a tie-break when several tasks are runnable.
func (r *Runner) Add(task Task, dependsOn ...string) *Runner {
	r.tasks[task.Name()] = task
	r.deps[task.Name()] = dependsOn
	r.order = append(r.order, task.Name())
	return r
}

// AddFunc registers a function as a task.
func (r *Runner) AddFunc(name string, fn func(ctx context.Context) error, dependsOn ...string) *Runner {
	return r.Add(NewTask(name, fn), dependsOn...)
}

// Retry attaches a retry policy to a named task.
func (r *Runner) Retry(name string, policy RetryPolicy) *Runner {
	r.retries[name] = policy
	return r
}

// Run executes all registered tasks. It fails fast: the first task
// failure (after retries) stops the run, and tasks downstream of the
// failure are marked skipped in the result.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	levels, err := r.levels()
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		Started: time.Now(),
		Tasks:   make(map[string]TaskResult),
	}
	var mu sync.Mutex

	for _, level := range levels {
		select {
		case <-ctx.Done():
			result.Finished = time.Now()
			return result, &RunnerError{Op: "run", Err: ctx.Err()}
		default:
		}

		if err := r.runLevel(ctx, level, result, &mu); err != nil {
			r.markSkipped(result)
			result.Finished = time.Now()
			return result, err
		}
	}

	result.Finished = time.Now()
	return result, nil
}

func (r *Runner) validate() error {
	for name, deps := range r.deps {
		for _, dep := range deps {
			if _, ok := r.tasks[dep]; !ok {
				return &RunnerError{
					Op:  "validate",
					Err: fmt.Errorf("task %q depends on unknown task %q", name, dep),
				}
			}
		}
	}
	return nil
}

// levels groups tasks by dependency depth using Kahn's algorithm, so
// each group can run concurrently once the previous group finishes.
func (r *Runner) levels() ([][]string, error) {
	inDegree := make(map[string]int, len(r.tasks))
	for name := range r.tasks {
		inDegree[name] = len(r.deps[name])
	}

	depth := make(map[string]int, len(r.tasks))
	var queue []string
	for _, name := range r.order {
		if inDegree[name] == 0 {
			queue = append(queue, name)
			depth[name] = 0
		}
	}

	processed := 0
	maxDepth := 0
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		processed++

		for _, name := range r.order {
			for _, dep := range r.deps[name] {
				if dep != current {
					continue
				}
				if d := depth[current] + 1; d > depth[name] {
					depth[name] = d
					if d > maxDepth {
						maxDepth = d
					}
				}
				inDegree[name]--
				if inDegree[name] == 0 {
					queue = append(queue, name)
				}
			}
		}
	}

	if processed != len(r.tasks) {
		return nil, &RunnerError{Op: "sort", Err: fmt.Errorf("dependency cycle detected")}
	}

	levels := make([][]string, maxDepth+1)
	for _, name := range r.order {
		levels[depth[name]] = append(levels[depth[name]], name)
	}
	return levels, nil
}

func (r *Runner) runLevel(ctx context.Context, names []string, result *RunResult, mu *sync.Mutex) error {
	workers := r.maxWorkers
	if len(names) < workers {
		workers = len(names)
	}

	taskChan := make(chan string, len(names))
	errChan := make(chan error, len(names))
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range taskChan {
				taskResult := r.runWithRetry(ctx, r.tasks[name])
				mu.Lock()
				result.Tasks[name] = taskResult
				mu.Unlock()
				if taskResult.Err != nil {
					errChan <- &RunnerError{
						Op:  "run",
						Err: fmt.Errorf("task %q failed: %w", name, taskResult.Err),
					}
					return
				}
			}
		}()
	}

	for _, name := range names {
		taskChan <- name
	}
	close(taskChan)

	wg.Wait()
	close(errChan)

	for err := range errChan {
		return err
	}
	return nil
}

func (r *Runner) runWithRetry(ctx context.Context, task Task) TaskResult {
	policy := r.retries[task.Name()]
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	start := time.Now()
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		r.logger.WithFields(logrus.Fields{
			"task":    task.Name(),
			"attempt": attempt + 1,
		}).Info("task starting")

		err := task.Run(ctx)
		if err == nil {
			duration := time.Since(start)
			r.logger.WithFields(logrus.Fields{
				"task":     task.Name(),
				"duration": duration,
			}).Info("task succeeded")
			return TaskResult{
				Status:   StatusSucceeded,
				Attempts: attempt + 1,
				Duration: duration,
			}
		}

		lastErr = err
		r.logger.WithFields(logrus.Fields{
			"task":    task.Name(),
			"attempt": attempt + 1,
		}).WithError(err).Warn("task attempt failed")

		if attempt < maxAttempts-1 {
			select {
			case <-time.After(policy.delay(attempt)):
			case <-ctx.Done():
				return TaskResult{
					Status:   StatusFailed,
					Attempts: attempt + 1,
					Duration: time.Since(start),
					Err:      ctx.Err(),
				}
			}
		}
	}

	return TaskResult{
		Status:   StatusFailed,
		Attempts: maxAttempts,
		Duration: time.Since(start),
		Err:      lastErr,
	}
}

func (r *Runner) markSkipped(result *RunResult) {
	for _, name := range r.order {
		if _, done := result.Tasks[name]; !done {
			result.Tasks[name] = TaskResult{Status: StatusSkipped}
		}
	}
}
