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

func isArrayOnly(ins *Instr) bool {
    return ins.Barrier &^ _BarrierArrayOnly == 0
}

// dependsOn reports whether prior must be scheduled before ins.
func dependsOn(ins *Instr, prior *Instr) bool {
    if (ins.Barrier & BarrierEverything != 0 && prior.Barrier != 0) || (prior.Barrier & BarrierEverything != 0 && ins.Barrier != 0) {
        return true
    }

    /* no conflicts at all */
    if ins.Barrier & prior.Conflict == 0 {
        return false
    }

    /* accesses to different arrays never alias */
    if isArrayOnly(ins) && isArrayOnly(prior) && ins.ArrayId != prior.ArrayId {
        return false
    }

    /* must keep the order */
    return true
}

func addBarrierDeps(bb *Block, i int) {
    ins := bb.Instrs[i]

    /* instructions that must be scheduled before this one */
    for j := i - 1; j >= 0; j-- {
        if pi := bb.Instrs[j]; !pi.IsMeta() {
            if ins.Barrier == pi.Barrier {
                ins.AddDep(pi)
                break
            } else if dependsOn(ins, pi) {
                ins.AddDep(pi)
            }
        }
    }

    /* instructions that must be scheduled after this one */
    for j := i + 1; j < len(bb.Instrs); j++ {
        if ni := bb.Instrs[j]; !ni.IsMeta() {
            if ins.Barrier == ni.Barrier {
                ni.AddDep(ins)
                break
            } else if dependsOn(ni, ins) {
                ni.AddDep(ins)
            }
        }
    }
}

// AddDeps adds the false dependencies needed to keep barriers ordered with
// respect to the accesses they guard, and reads before a write actually
// scheduled before the write. It must run before scheduling and does not
// reorder anything.
func AddDeps(sh *Shader) {
    for _, bb := range sh.Blocks {
        for i, v := range bb.Instrs {
            if v.Barrier != 0 {
                addBarrierDeps(bb, i)
            }
        }
    }
}
