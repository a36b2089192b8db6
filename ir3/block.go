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

// Block is a basic block: an ordered instruction sequence plus up to two
// successors. A block with two successors branches on Condition.
type Block struct {
    Id           int
    Shader       *Shader
    Instrs       []*Instr
    Successors   [2]*Block
    Predecessors []*Block
    Condition    *Instr
    Keeps        []*Instr
}

func (self *Block) indexOf(ins *Instr) int {
    for i, v := range self.Instrs {
        if v == ins {
            return i
        }
    }
    return -1
}

func (self *Block) remove(ins *Instr) bool {
    if i := self.indexOf(ins); i < 0 {
        return false
    } else {
        self.Instrs = append(self.Instrs[:i], self.Instrs[i + 1:]...)
        return true
    }
}

func (self *Block) append(ins *Instr) {
    ins.Block = self
    self.Instrs = append(self.Instrs, ins)
}

// insertByDepth moves ins after every instruction with a depth less than
// or equal to its own, keeping equal depths in their existing order.
func (self *Block) insertByDepth(ins *Instr) {
    self.remove(ins)
    self.Instrs = insertByDepth(self.Instrs, ins)
}

func insertByDepth(list []*Instr, ins *Instr) []*Instr {
    for i, v := range list {
        if v.Depth > ins.Depth {
            list = append(list, nil)
            copy(list[i + 1:], list[i:])
            list[i] = ins
            return list
        }
    }
    return append(list, ins)
}

// NumSuccessors is 0 for a terminal block, 1 for an unconditional jump and
// 2 for a conditional branch.
func (self *Block) NumSuccessors() int {
    switch {
        case self.Successors[1] != nil : return 2
        case self.Successors[0] != nil : return 1
        default                        : return 0
    }
}

// Keep marks ins as a side effect the block must retain.
func (self *Block) Keep(ins *Instr) {
    self.Keeps = append(self.Keeps, ins)
}

// SetCondition sets the value tested when leaving a two-successor block.
func (self *Block) SetCondition(ins *Instr) {
    if !ins.WritesPred() {
        panic("ir3: block condition must write the predicate register")
    }
    self.Condition = ins
}
