/*
 * Copyright 2022 ByteDance Inc.
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

package ir3

import (
    `sync/atomic`
)

var (
    ScheduledCount uint64
    NopCount       uint64
    SplitCount     uint64
    CloneCount     uint64
    PrunedCount    uint64
)

func countScheduled() { atomic.AddUint64(&ScheduledCount, 1) }
func countNop()       { atomic.AddUint64(&NopCount, 1) }
func countSplit()     { atomic.AddUint64(&SplitCount, 1) }
func countClone()     { atomic.AddUint64(&CloneCount, 1) }
func countPruned()    { atomic.AddUint64(&PrunedCount, 1) }
