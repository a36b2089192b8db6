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
    `fmt`
    `strings`
)

// SchedError occures when the scheduler cannot make progress on a block.
// It indicates a malformed dependency graph.
type SchedError struct {
    Block  int
    Reason string
}

func (self SchedError) Error() string {
    return fmt.Sprintf("SchedError(bb_%d): %s", self.Block, self.Reason)
}

// DelayError occures when an instruction would need more delay slots than
// the hardware worst case.
type DelayError struct {
    Block int
    Instr int
    Delay int
}

func (self DelayError) Error() string {
    return fmt.Sprintf("DelayError(bb_%d): %%%d needs %d delay slots, at most %d allowed", self.Block, self.Instr, self.Delay, MaxDelay)
}

// CycleError occures when the instructions of a block depend on each other
// in a cycle.
type CycleError struct {
    Block  int
    Instrs []int
}

func (self CycleError) Error() string {
    ids := make([]string, 0, len(self.Instrs))
    for _, v := range self.Instrs {
        ids = append(ids, fmt.Sprintf("%%%d", v))
    }
    return fmt.Sprintf("CycleError(bb_%d): cyclic dependency between {%s}", self.Block, strings.Join(ids, ", "))
}

// VerifyError occures when a scheduled shader fails verification.
type VerifyError struct {
    Issues []Issue
}

func (self VerifyError) Error() string {
    msg := make([]string, 0, len(self.Issues))
    for _, v := range self.Issues {
        msg = append(msg, v.String())
    }
    return fmt.Sprintf("VerifyError: %d issue(s):\n%s", len(self.Issues), strings.Join(msg, "\n"))
}
