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

    `github.com/oleiade/lane`
)

type IssueType string

const (
    IssueHazard        IssueType = "HAZARD"
    IssueAddrExclusive IssueType = "ADDR"
    IssuePredExclusive IssueType = "PRED"
    IssueDeadCode      IssueType = "DEAD"
)

// Issue is a problem found in a scheduled shader.
type Issue struct {
    Type    IssueType
    Block   int
    Instr   int
    Message string
}

func (self Issue) String() string {
    return fmt.Sprintf("[%s] bb_%d %%%d: %s", self.Type, self.Block, self.Instr, self.Message)
}

func slotsBefore(bb *Block, end int) int {
    n := 0
    for _, v := range bb.Instrs[:end] {
        if isSlot(v) {
            n++
        }
    }
    return n
}

func verifyHazards(bb *Block) (ret []Issue) {
    for i, ins := range bb.Instrs {
        delay := delayCalc(bb, i, ins, false, false)

        /* values coming from other blocks */
        if n := slotsBefore(bb, i); n < MaxDelay {
            for _, p := range bb.Predecessors {
                if d := delayCalc(p, len(p.Instrs), ins, false, true) - n; d > delay {
                    delay = d
                }
            }
        }

        /* not enough slots in between */
        if delay > 0 {
            ret = append(ret, Issue {
                Type    : IssueHazard,
                Block   : bb.Id,
                Instr   : ins.Id,
                Message : fmt.Sprintf("%s issued %d slot(s) too early", ins, delay),
            })
        }
    }
    return
}

func lastUse(bb *Block, def *Instr) int {
    ret := -1
    for i, v := range bb.Instrs {
        v.Operands(func(op Operand) {
            if op.Def == def && !op.False {
                ret = i
            }
        })
    }
    return ret
}

func verifyExclusive(bb *Block, kind IssueType, writes func(*Instr) bool) (ret []Issue) {
    var held *Instr
    var until int

    /* scan for writers of the register */
    for i, ins := range bb.Instrs {
        if !writes(ins) {
            continue
        }

        /* the previous value is still in use */
        if held != nil && i < until {
            ret = append(ret, Issue {
                Type    : kind,
                Block   : bb.Id,
                Instr   : ins.Id,
                Message : fmt.Sprintf("%s overwrites %%%d before it's last use", ins, held.Id),
            })
        }

        /* take the register */
        held = ins
        until = lastUse(bb, ins)
    }
    return
}

func isRoot(ins *Instr) bool {
    return ins.Op == OpNop || ins.Op == OpBr || ins.Op == OpJump || ins.IsInput() || isUnremovable(ins)
}

func verifyLiveness(sh *Shader) (ret []Issue) {
    st := lane.NewStack()
    live := make(map[*Instr]bool)

    /* everything that is observable */
    for _, v := range sh.Outputs {
        st.Push(v)
    }
    for _, bb := range sh.Blocks {
        for _, v := range bb.Keeps {
            st.Push(v)
        }
        if bb.Condition != nil {
            st.Push(bb.Condition)
        }
        for _, v := range bb.Instrs {
            if isRoot(v) {
                st.Push(v)
            }
        }
    }

    /* walk the data dependencies */
    for !st.Empty() {
        ins := st.Pop().(*Instr)
        if live[ins] {
            continue
        }
        live[ins] = true
        ins.Operands(func(op Operand) {
            if !op.False && !live[op.Def] {
                st.Push(op.Def)
            }
        })
    }

    /* anything else is dead */
    sh.ForEachInstr(func(ins *Instr) {
        if !live[ins] {
            ret = append(ret, Issue {
                Type    : IssueDeadCode,
                Block   : ins.Block.Id,
                Instr   : ins.Id,
                Message : fmt.Sprintf("%s is not used by any output", ins),
            })
        }
    })
    return
}

// Verify checks a scheduled shader: every delay is honored, the address
// and predicate registers have at most one pending writer, and nothing
// unused is left.
func Verify(sh *Shader) (ret []Issue) {
    for _, bb := range sh.Blocks {
        ret = append(ret, verifyHazards(bb)...)
        ret = append(ret, verifyExclusive(bb, IssueAddrExclusive, (*Instr).WritesAddr)...)
        ret = append(ret, verifyExclusive(bb, IssuePredExclusive, (*Instr).WritesPred)...)
    }
    return append(ret, verifyLiveness(sh)...)
}
