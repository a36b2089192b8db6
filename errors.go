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

package ir3sched

import (
    `github.com/freedreno/ir3sched/ir3`
)

type (
    // SchedError occures when a block cannot be scheduled at all.
    SchedError = ir3.SchedError

    // DelayError occures when a dependency needs more delay slots than the
    // hardware worst case.
    DelayError = ir3.DelayError

    // CycleError occures when the dependency graph of a block is cyclic.
    CycleError = ir3.CycleError

    // VerifyError occures when the scheduled shader fails verification.
    VerifyError = ir3.VerifyError
)
