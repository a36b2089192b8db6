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

package debug

import (
	"sync/atomic"

	"github.com/freedreno/ir3sched/ir3"
)

// A Stats records statistics about the scheduler, accumulated over every
// shader scheduled so far.
type Stats struct {
	Scheduled int
	Nops      int
	Splits    int
	Clones    int
	Pruned    int
}

// GetStats returns statistics of the scheduler.
func GetStats() Stats {
	return Stats{
		Scheduled: int(atomic.LoadUint64(&ir3.ScheduledCount)),
		Nops:      int(atomic.LoadUint64(&ir3.NopCount)),
		Splits:    int(atomic.LoadUint64(&ir3.SplitCount)),
		Clones:    int(atomic.LoadUint64(&ir3.CloneCount)),
		Pruned:    int(atomic.LoadUint64(&ir3.PrunedCount)),
	}
}
