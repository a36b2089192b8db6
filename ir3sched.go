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

// Package ir3sched schedules the instructions of an ir3 shader: each block
// is reordered to honor the delay slots between producers and consumers,
// the single address and predicate registers are kept conflict-free, and
// no-ops are inserted where nothing else can be issued.
package ir3sched

import (
	"github.com/freedreno/ir3sched/internal/opts"
	"github.com/freedreno/ir3sched/ir3"
)

// AddOrderingDependencies adds the false dependencies that keep memory
// barriers, array accesses and other shared-state accesses in program
// order. It must be called on the unscheduled shader, before Schedule.
func AddOrderingDependencies(sh *ir3.Shader) {
	ir3.AddDeps(sh)
}

// Schedule computes instruction depths, prunes unused instructions,
// schedules every block of sh in place and fixes up delays between
// blocks.
//
// The shader is left in an unspecified state if an error is returned.
func Schedule(sh *ir3.Shader, options ...Option) error {
	o := opts.GetDefaultOptions()
	for _, fn := range options {
		fn(&o)
	}
	return ir3.Schedule(sh, &o)
}
