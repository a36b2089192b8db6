/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package ir3sched

import (
	"log/slog"

	"github.com/freedreno/ir3sched/internal/opts"
)

// Option is the property setter function for opts.Options.
type Option func(*opts.Options)

// WithVerify checks the scheduled shader for delay hazards, special
// register conflicts and dead code, returning a VerifyError if anything
// is found.
//
// This value can also be configured with the `IR3SCHED_VERIFY`
// environment variable.
func WithVerify(v bool) Option {
	return func(o *opts.Options) { o.Verify = v }
}

// WithAcyclicCheck rejects shaders whose blocks contain dependency cycles
// with a CycleError, before anything is modified.
//
// This value can also be configured with the `IR3SCHED_CHECK`
// environment variable.
func WithAcyclicCheck(v bool) Option {
	return func(o *opts.Options) { o.CheckAcyclic = v }
}

// WithDebug logs every scheduling decision at debug level, and dumps the
// unscheduled instructions when a block fails to schedule.
//
// This value can also be configured with the `IR3SCHED_DEBUG`
// environment variable.
func WithDebug(v bool) Option {
	return func(o *opts.Options) { o.Debug = v }
}

// WithScheduleDrawing writes an SVG rendering of the final schedule to fn.
// An empty name disables drawing.
//
// This value can also be configured with the `IR3SCHED_DRAW`
// environment variable.
func WithScheduleDrawing(fn string) Option {
	return func(o *opts.Options) { o.DrawSchedule = fn }
}

// WithLogger sets the logger used by the scheduler. The default logger
// from log/slog is used if not set.
func WithLogger(logger *slog.Logger) Option {
	return func(o *opts.Options) { o.Logger = logger }
}

// SetVerify sets the default verification setting for every Schedule call
// from now on.
//
// Returns the old opts.Verify value.
func SetVerify(v bool) bool {
	v, opts.Verify = opts.Verify, v
	return v
}

// SetDebug sets the default debug setting for every Schedule call from now
// on.
//
// Returns the old opts.Debug value.
func SetDebug(v bool) bool {
	v, opts.Debug = opts.Debug, v
	return v
}
