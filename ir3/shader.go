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

// Shader owns every block and instruction of a program, along with the
// side tables the scheduler consults.
type Shader struct {
    Blocks             []*Block
    Outputs            []*Instr
    Indirects          []*Instr
    Predicates         []*Instr
    Baryfs             []*Instr
    Inputs             []*Instr
    NumSamplerPrefetch int

    instrs []*Instr
}

func NewShader() *Shader {
    return new(Shader)
}

func (self *Shader) NewBlock() *Block {
    bb := &Block {
        Id     : len(self.Blocks),
        Shader : self,
    }
    self.Blocks = append(self.Blocks, bb)
    return bb
}

// Instr returns the instruction with the given Id, or nil if it was never
// created.
func (self *Shader) Instr(id int) *Instr {
    if id < 0 || id >= len(self.instrs) {
        return nil
    } else {
        return self.instrs[id]
    }
}

// NumInstrs is the number of Ids handed out so far.
func (self *Shader) NumInstrs() int {
    return len(self.instrs)
}

func (self *Shader) newInstr(bb *Block, op Opcode) *Instr {
    ins := &Instr {
        Id    : len(self.instrs),
        Op    : op,
        Block : bb,
    }
    self.instrs = append(self.instrs, ins)
    return ins
}

// clone creates a copy of ins sharing its source references. The copy is
// not placed in any instruction list.
func (self *Shader) clone(ins *Instr, bb *Block) *Instr {
    ret := self.newInstr(bb, ins.Op)
    id := ret.Id
    *ret = *ins
    ret.Id = id
    ret.Block = bb
    ret.Srcs = append([]Src(nil), ins.Srcs...)
    ret.Deps = append([]*Instr(nil), ins.Deps...)
    return ret
}

// Output marks ins as externally observable.
func (self *Shader) Output(ins *Instr) {
    self.Outputs = append(self.Outputs, ins)
}

// Link adds control-flow edges from bb to its successors, in order.
func (self *Shader) Link(bb *Block, succs ...*Block) {
    if len(succs) > 2 {
        panic("ir3: a block has at most two successors")
    }
    for i, s := range succs {
        bb.Successors[i] = s
        s.Predecessors = append(s.Predecessors, bb)
    }
}

// ForEachInstr visits every instruction currently placed in a block.
func (self *Shader) ForEachInstr(fn func(ins *Instr)) {
    for _, bb := range self.Blocks {
        for _, v := range bb.Instrs {
            fn(v)
        }
    }
}

func removeInstr(list []*Instr, fn func(*Instr) bool) []*Instr {
    ret := list[:0]
    for _, v := range list {
        if !fn(v) {
            ret = append(ret, v)
        }
    }
    return ret
}
