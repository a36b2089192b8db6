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

const (
    // MaxDelay is the worst case number of slots between a producer and
    // its consumer.
    MaxDelay = 6

    _SoftSFUDelay = 4
    _BranchDelay  = 6
)

func isFalseDep(consumer *Instr, n int, producer *Instr) bool {
    if !consumer.IsFalseDep(n) {
        return false
    } else {
        return !(producer.WritesArray() && consumer.ReadsArray(producer.ArrayId))
    }
}

// DelaySlots returns the number of cycles that must elapse between
// producer and the consumer reading it through slot n.
//
// ALU to ALU needs 3 cycles, ALU to SFU/texture/memory/flow control needs
// 6. Results of SFU, texture and memory instructions are synchronized by
// the hardware and need none.
func DelaySlots(producer *Instr, consumer *Instr, n int) int {
    if isFalseDep(consumer, n, producer) {
        return 0
    }

    /* meta instructions have no cost of their own */
    if producer.IsMeta() || consumer.IsMeta() {
        return 0
    }

    /* a0.x is read on the first cycle by anything */
    if producer.WritesAddr() {
        return 6
    }

    /* handled via sync flags */
    if producer.IsSFU() || producer.IsTex() || producer.IsMem() {
        return 0
    }

    /* producer must be alu */
    if consumer.IsFlow() || consumer.IsSFU() || consumer.IsTex() || consumer.IsMem() {
        return 6
    } else if consumer.IsMad() && n == 3 {
        return 1
    } else {
        return 3
    }
}

func softDelaySlots(producer *Instr, consumer *Instr, n int) int {
    if producer.IsSFU() {
        return _SoftSFUDelay
    } else {
        return DelaySlots(producer, consumer, n)
    }
}
