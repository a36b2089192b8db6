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

func srclist(v []*Instr) []Src {
    ret := make([]Src, len(v))
    for i, s := range v {
        ret[i] = Src { Def: s }
    }
    return ret
}

func compmask(n int) uint {
    return (1 << uint(n)) - 1
}

// Emit appends a new instruction writing a single GPR component.
func (self *Block) Emit(op Opcode, srcs ...*Instr) *Instr {
    ins := self.Shader.newInstr(self, op)
    ins.Srcs = srclist(srcs)
    ins.Dst = Dst { Kind: RegGPR, Wrmask: 1 }
    self.Instrs = append(self.Instrs, ins)
    return ins
}

// Imm materializes an immediate with a mov.
func (self *Block) Imm(v float64) *Instr {
    ins := self.Emit(OpMov)
    ins.Imm = v
    return ins
}

func (self *Block) Mad(x *Instr, y *Instr, z *Instr) *Instr {
    return self.Emit(OpMad, x, y, z)
}

// Input materializes a value present in registers at shader start.
func (self *Block) Input(sv Sysval, ncomp int) *Instr {
    ins := self.Emit(OpMetaInput)
    ins.Sysval = sv
    ins.Dst.Wrmask = compmask(ncomp)
    self.Shader.Inputs = append(self.Shader.Inputs, ins)
    return ins
}

// Prefetch is a texture fetch issued before the shader starts.
func (self *Block) Prefetch(ncomp int) *Instr {
    ins := self.Emit(OpMetaTexPrefetch)
    ins.Dst.Wrmask = compmask(ncomp)
    self.Shader.NumSamplerPrefetch++
    return ins
}

// Mova loads the address register.
func (self *Block) Mova(x *Instr) *Instr {
    ins := self.Emit(OpMova, x)
    ins.Dst.Kind = RegAddr
    return ins
}

// CmpPred compares x and y into the predicate register.
func (self *Block) CmpPred(x *Instr, y *Instr) *Instr {
    ins := self.Emit(OpCmp, x, y)
    ins.Dst.Kind = RegPred
    return ins
}

func (self *Block) SFU(op Opcode, x *Instr) *Instr {
    return self.Emit(op, x)
}

// Tex emits a texture fetch writing ncomp components.
func (self *Block) Tex(op Opcode, ncomp int, srcs ...*Instr) *Instr {
    ins := self.Emit(op, srcs...)
    ins.Dst.Wrmask = compmask(ncomp)
    return ins
}

// Split extracts component off of a vector value.
func (self *Block) Split(src *Instr, off int) *Instr {
    ins := self.Emit(OpMetaSplit, src)
    ins.Off = off
    return ins
}

// Collect packs srcs into a vector register group.
func (self *Block) Collect(srcs ...*Instr) *Instr {
    ins := self.Emit(OpMetaCollect, srcs...)
    ins.Dst.Wrmask = compmask(len(srcs))
    return ins
}

// BaryF interpolates a varying.
func (self *Block) BaryF(ij *Instr) *Instr {
    ins := self.Emit(OpBaryF, ij)
    self.Shader.Baryfs = append(self.Shader.Baryfs, ins)
    return ins
}

// Kill discards the fragment when the predicate p is set.
func (self *Block) Kill(p *Instr) *Instr {
    ins := self.Emit(OpKill, p)
    ins.Dst = Dst{}
    ins.Barrier = BarrierEverything
    ins.Conflict = ^BarrierClass(0)
    self.Shader.Predicates = append(self.Shader.Predicates, ins)
    self.Keep(ins)
    return ins
}

// LoadArray reads element of array id, last written by last (nil when
// the array is not written in this shader). A non-nil addr makes the
// access indirect.
func (self *Block) LoadArray(id int, last *Instr, addr *Instr) *Instr {
    ins := self.Emit(OpMov)
    ins.ArrayId = id
    ins.Barrier = BarrierArrayR
    ins.Conflict = BarrierArrayW
    if last != nil {
        ins.Srcs = []Src {{ Def: last, Array: true }}
    }
    self.setAddress(ins, addr)
    return ins
}

// StoreArray writes val into array id. prev is the previous write of the
// same array, if any.
func (self *Block) StoreArray(id int, prev *Instr, val *Instr, addr *Instr) *Instr {
    ins := self.Emit(OpMov, val)
    ins.Dst = Dst{}
    ins.Prev = prev
    ins.ArrayId = id
    ins.Barrier = BarrierArrayW
    ins.Conflict = BarrierArrayR | BarrierArrayW
    self.setAddress(ins, addr)
    return ins
}

func (self *Block) setAddress(ins *Instr, addr *Instr) {
    if addr != nil {
        if !addr.WritesAddr() {
            panic("ir3: indirect access through a non-address value")
        }
        ins.Address = addr
        self.Shader.Indirects = append(self.Shader.Indirects, ins)
    }
}

// Load emits a memory load (ldg/ldl/ldib) of ncomp components.
func (self *Block) Load(op Opcode, ncomp int, srcs ...*Instr) *Instr {
    ins := self.Emit(op, srcs...)
    ins.Dst.Wrmask = compmask(ncomp)
    switch op {
        case OpLdl  : ins.Barrier, ins.Conflict = BarrierSharedR, BarrierSharedW
        case OpLdib : ins.Barrier, ins.Conflict = BarrierImageR, BarrierImageW
        default     : ins.Barrier, ins.Conflict = BarrierBufferR, BarrierBufferW
    }
    return ins
}

// Store emits a memory store (stg/stl/stib); stores are always kept.
func (self *Block) Store(op Opcode, srcs ...*Instr) *Instr {
    ins := self.Emit(op, srcs...)
    ins.Dst = Dst{}
    switch op {
        case OpStl  : ins.Barrier, ins.Conflict = BarrierSharedW, BarrierSharedR | BarrierSharedW
        case OpStib : ins.Barrier, ins.Conflict = BarrierImageW, BarrierImageR | BarrierImageW
        default     : ins.Barrier, ins.Conflict = BarrierBufferW, BarrierBufferR | BarrierBufferW
    }
    self.Keep(ins)
    return ins
}

// Barrier emits a bar or fence that orders every shared-state access.
func (self *Block) Barrier(op Opcode) *Instr {
    ins := self.Emit(op)
    ins.Dst = Dst{}
    ins.Barrier = BarrierEverything
    ins.Conflict = ^BarrierClass(0)
    self.Keep(ins)
    return ins
}

// End terminates the shader, consuming srcs.
func (self *Block) End(srcs ...*Instr) *Instr {
    ins := self.Emit(OpEnd, srcs...)
    ins.Dst = Dst{}
    self.Keep(ins)
    return ins
}
