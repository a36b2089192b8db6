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
    `math/bits`

    `github.com/oleiade/lane`
    `github.com/freedreno/ir3sched/internal/opts`
)

type _DepthWalker struct {
    seen map[int]bool
}

func (self *_DepthWalker) visit(ins *Instr, boost int, falsedep bool) {
    if !falsedep {
        ins.Unused = false
    }

    /* don't descend into already visited nodes */
    if self.seen[ins.Id] {
        return
    }

    /* compute the depth from all the sources */
    depth := 0
    self.seen[ins.Id] = true

    /* visit every source */
    ins.Operands(func(op Operand) {
        self.visit(op.Def, boost, op.False)

        /* for array writes, no need to delay on previous write */
        if op.Slot == 0 {
            return
        }

        /* find the longest path */
        if sd := DelaySlots(op.Def, ins, op.Slot) + op.Def.Depth + boost; sd > depth {
            depth = sd
        }
    })

    /* meta instructions do not occupy an issue slot, the depth is only
     * published once every source is placed */
    if !ins.IsMeta() {
        depth++
    }
    ins.Depth = depth

    /* keep the block sorted by depth */
    ins.Block.insertByDepth(ins)
}

func isUnremovable(ins *Instr) bool {
    return ins.Op == OpEnd || ins.Op == OpChsh || ins.Op == OpChmask
}

func isExemptInput(sh *Shader, ins *Instr) bool {
    return sh.NumSamplerPrefetch != 0 && ins.IsInput() && ins.Sysval == SysvalBaryPerspPixel
}

// narrowTexture masks off the component an unused split extracted from a
// texture fetch, along with every component above the highest one still
// being extracted.
func narrowTexture(users map[int][]*Instr, split *Instr) {
    var live uint
    var src *Instr

    /* only texture fetches have a writemask */
    if src = split.Srcs[0].Def; !src.IsTexOrPrefetch() || src.Dst.Wrmask <= 1 {
        return
    }

    /* scan all the users of the texture result */
    q := lane.NewQueue()
    for _, u := range users[src.Id] {
        q.Enqueue(u)
    }

    /* the result must only be consumed component-wise */
    for !q.Empty() {
        if u := q.Dequeue().(*Instr); u.Op != OpMetaSplit {
            return
        } else if !u.Unused {
            live |= 1 << uint(u.Off)
        }
    }

    /* drop the dead component and everything above the live ones */
    mask := src.Dst.Wrmask &^ (1 << uint(split.Off))
    mask &= compmask(bits.Len(live))

    /* never leave the fetch without a destination */
    if mask != 0 {
        src.Dst.Wrmask = mask
    }
}

func realUsers(sh *Shader) map[int][]*Instr {
    ret := make(map[int][]*Instr)
    sh.ForEachInstr(func(ins *Instr) {
        ins.Operands(func(op Operand) {
            if !op.False {
                ret[op.Def.Id] = append(ret[op.Def.Id], ins)
            }
        })
    })
    return ret
}

func removeUnused(sh *Shader) bool {
    var users map[int][]*Instr
    removed := make(map[*Instr]bool)

    /* texture narrowing needs the users of every value */
    sh.ForEachInstr(func(ins *Instr) {
        if users == nil && ins.Unused && ins.Op == OpMetaSplit {
            users = realUsers(sh)
        }
    })

    /* Phase 1: Remove unused instructions from every block */
    for _, bb := range sh.Blocks {
        ins := bb.Instrs
        bb.Instrs = bb.Instrs[:0]

        /* filter the instructions */
        for _, v := range ins {
            if !v.Unused || isUnremovable(v) {
                bb.Instrs = append(bb.Instrs, v)
                continue
            }

            /* narrow the texture fetch this split was extracting from */
            if v.Op == OpMetaSplit {
                narrowTexture(users, v)
            }

            /* mark as removed */
            countPruned()
            removed[v] = true
        }
    }

    /* nothing removed */
    if len(removed) == 0 {
        return false
    }

    /* Phase 2: Drop ordering dependencies to removed instructions */
    isRemoved := func(v *Instr) bool { return removed[v] }
    sh.ForEachInstr(func(ins *Instr) {
        ins.Deps = removeInstr(ins.Deps, isRemoved)
    })

    /* Phase 3: Clean up the side tables */
    sh.Indirects = removeInstr(sh.Indirects, isRemoved)
    sh.Predicates = removeInstr(sh.Predicates, isRemoved)
    sh.Baryfs = removeInstr(sh.Baryfs, isRemoved)
    sh.Inputs = removeInstr(sh.Inputs, isRemoved)
    return true
}

// ComputeDepth computes the depth of every instruction reachable from the
// outputs, keeps and block conditions, sorts each block by depth and
// removes every instruction found unused. It reports whether anything was
// removed.
func ComputeDepth(sh *Shader) bool {
    w := &_DepthWalker {
        seen: make(map[int]bool, sh.NumInstrs()),
    }

    /* initially mark everything as unused */
    sh.ForEachInstr(func(ins *Instr) {
        ins.Unused = !isExemptInput(sh, ins)
    })

    /* shader outputs */
    for _, v := range sh.Outputs {
        w.visit(v, 0, false)
    }

    /* side-effects and branch conditions */
    for _, bb := range sh.Blocks {
        for _, v := range bb.Keeps {
            w.visit(v, 0, false)
        }
        if bb.Condition != nil {
            w.visit(bb.Condition, _BranchDelay, false)
        }
    }

    /* remove everything that is not used */
    return removeUnused(sh)
}

// Depth computes instruction depths and prunes unused instructions until
// a fixpoint is reached.
type Depth struct{}

func (Depth) Apply(sh *Shader, o *opts.Options) error {
    for round := 1; ComputeDepth(sh); round++ {
        o.Log().Debug("depth: removed unused instructions", slog.Int("round", round))
    }
    return nil
}
