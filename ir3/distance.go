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

// isSlot reports whether ins occupies an issue slot when counting
// distances. Branches and jumps are not counted since they may be
// eliminated later on.
func isSlot(ins *Instr) bool {
    return ins.IsALU() || (ins.IsFlow() && ins.Op != OpJump && ins.Op != OpBr)
}

// distance counts the slots between the end of the first end instructions
// of bb and ins, giving up after maxd slots.
//
// When the instruction is not found in bb, it is assumed to be far enough
// away unless pred is set, in which case every predecessor is searched
// recursively and the shortest (worst case) distance is used. This is only
// possible once every block has been scheduled.
func distance(bb *Block, end int, ins *Instr, maxd int, pred bool, seen map[*Block]bool) int {
    d := 0
    for i := end - 1; i >= 0; i-- {
        n := bb.Instrs[i]
        if n == ins || d >= maxd {
            return d
        }
        if isSlot(n) {
            d++
        }
    }

    /* assumed to be far enough away, fixed up later */
    if !pred {
        return maxd
    }

    /* already being searched, don't recurse */
    if seen[bb] {
        return d
    }

    /* find the predecessor with the shortest distance */
    min := maxd - d
    seen[bb] = true

    /* search every predecessor */
    for _, p := range bb.Predecessors {
        if n := distance(p, len(p.Instrs), ins, min, true, seen); n < min {
            min = n
        }
    }

    /* restore the search state */
    delete(seen, bb)
    return d + min
}

func delayCalcSrcn(bb *Block, end int, assigner *Instr, consumer *Instr, n int, soft bool, pred bool, seen map[*Block]bool) int {
    delay := 0

    /* meta instructions pass the delay of their sources along */
    if assigner.IsMeta() {
        assigner.Operands(func(op Operand) {
            if d := delayCalcSrcn(bb, end, op.Def, consumer, n, soft, pred, seen); d > delay {
                delay = d
            }
        })
        return delay
    }

    /* the optimistic estimation */
    if soft {
        delay = softDelaySlots(assigner, consumer, n)
    } else {
        delay = DelaySlots(assigner, consumer, n)
    }

    /* subtract the slots already passed */
    return delay - distance(bb, end, assigner, delay, pred, seen)
}

// delayCalc is the number of nops needed before ins could be issued right
// after the first end instructions of bb.
func delayCalc(bb *Block, end int, ins *Instr, soft bool, pred bool) int {
    delay := 0
    seen := make(map[*Block]bool)

    /* maximum delay of all sources */
    ins.Operands(func(op Operand) {
        if d := delayCalcSrcn(bb, end, op.Def, ins, op.Slot, soft, pred, seen); d > delay {
            delay = d
        }
    })
    return delay
}
