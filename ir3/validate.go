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
    `sort`

    `gonum.org/v1/gonum/graph/simple`
    `gonum.org/v1/gonum/graph/topo`
)

func blockGraph(bb *Block) (*simple.DirectedGraph, []int) {
    g := simple.NewDirectedGraph()
    for _, v := range bb.Instrs {
        g.AddNode(simple.Node(v.Id))
    }

    /* add an edge for every dependency within the block */
    for _, v := range bb.Instrs {
        var loop []int
        v.Operands(func(op Operand) {
            switch {
                case op.Def.Block != bb : break
                case op.Def == v        : loop = append(loop, v.Id)
                default                 : g.SetEdge(g.NewEdge(simple.Node(op.Def.Id), simple.Node(v.Id)))
            }
        })

        /* an instruction depending on itself */
        if len(loop) != 0 {
            return nil, loop[:1]
        }
    }
    return g, nil
}

func cycleIds(err topo.Unorderable) []int {
    var ret []int
    for _, c := range err {
        for _, n := range c {
            ret = append(ret, int(n.ID()))
        }
    }
    sort.Ints(ret)
    return ret
}

// CheckAcyclic makes sure the instructions of every block can be ordered
// at all, returning a CycleError naming the offending instructions
// otherwise. The scheduler would fail with a less helpful error on such
// input.
func CheckAcyclic(sh *Shader) error {
    for _, bb := range sh.Blocks {
        g, ids := blockGraph(bb)
        if ids != nil {
            return CycleError { Block: bb.Id, Instrs: ids }
        }

        /* find the strongly connected components */
        if _, err := topo.Sort(g); err != nil {
            if uo, ok := err.(topo.Unorderable); ok {
                return CycleError { Block: bb.Id, Instrs: cycleIds(uo) }
            } else {
                return err
            }
        }
    }
    return nil
}
