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
    `log/slog`

    `github.com/freedreno/ir3sched/internal/opts`
)

// Legalize fixes up delays between blocks. Each block is scheduled on its
// own assuming values from other blocks are far enough away, which can't
// be known in the first pass because of loops. Once every block is
// scheduled, the real distances through every predecessor are used and
// nops are stuffed in until things are legal.
type Legalize struct{}

func (Legalize) block(bb *Block, o *opts.Options) error {
    n := 0
    for i := 0; i < len(bb.Instrs) && n <= MaxDelay; i++ {
        ins := bb.Instrs[i]
        delay := 0

        /* worst case of all predecessors */
        for _, p := range bb.Predecessors {
            if d := delayCalc(p, len(p.Instrs), ins, false, true); d > delay {
                delay = d
            }
        }

        /* should never happen */
        if delay > MaxDelay {
            return DelayError { Block: bb.Id, Instr: ins.Id, Delay: delay }
        }

        /* stuff nops before the instruction */
        if delay > n {
            o.Trace("legalize: padding", slog.Int("block", bb.Id), slog.Int("instr", ins.Id), slog.Int("nops", delay - n))
        }
        for ; delay > n; n++ {
            nop := bb.Shader.newInstr(bb, OpNop)
            bb.Instrs = append(bb.Instrs, nil)
            copy(bb.Instrs[i + 1:], bb.Instrs[i:])
            bb.Instrs[i] = nop
            countNop()
            i++
        }

        /* count the slot taken by this instruction */
        if isSlot(ins) {
            n++
        }
    }
    return nil
}

func (self Legalize) Apply(sh *Shader, o *opts.Options) error {
    for _, bb := range sh.Blocks {
        if err := self.block(bb, o); err != nil {
            return err
        }
    }
    return nil
}
