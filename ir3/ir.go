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
    `math/bits`
    `strings`
)

type Class uint8

const (
    ClassALU Class = iota
    ClassSFU
    ClassTexture
    ClassMemory
    ClassFlow
    ClassMeta
    ClassInput
)

var _ClassNames = [...]string {
    ClassALU     : "alu",
    ClassSFU     : "sfu",
    ClassTexture : "tex",
    ClassMemory  : "mem",
    ClassFlow    : "flow",
    ClassMeta    : "meta",
    ClassInput   : "input",
}

func (self Class) String() string {
    if int(self) < len(_ClassNames) {
        return _ClassNames[self]
    } else {
        return fmt.Sprintf("class(%d)", self)
    }
}

type Opcode uint8

const (
    /* flow control (cat0) */
    OpNop Opcode = iota
    OpBr
    OpJump
    OpKill
    OpEnd
    OpChsh
    OpChmask

    /* alu (cat1 - cat3) */
    OpMov
    OpMova
    OpAdd
    OpMul
    OpMin
    OpMax
    OpCmp
    OpMad
    OpMadsh
    OpSel

    /* sfu (cat4) */
    OpRcp
    OpRsq
    OpSin
    OpCos
    OpLog2
    OpExp2

    /* texture (cat5) */
    OpSam
    OpIsam
    OpGetSize

    /* memory (cat6 / cat7) */
    OpBaryF
    OpLdg
    OpStg
    OpLdl
    OpStl
    OpLdib
    OpStib
    OpBar
    OpFence

    /* meta */
    OpMetaInput
    OpMetaTexPrefetch
    OpMetaCollect
    OpMetaSplit
)

type _OpInfo struct {
    name  string
    class Class
}

var _OpTab = [...]_OpInfo {
    OpNop             : { "nop"      , ClassFlow    },
    OpBr              : { "br"       , ClassFlow    },
    OpJump            : { "jump"     , ClassFlow    },
    OpKill            : { "kill"     , ClassFlow    },
    OpEnd             : { "end"      , ClassFlow    },
    OpChsh            : { "chsh"     , ClassFlow    },
    OpChmask          : { "chmask"   , ClassFlow    },
    OpMov             : { "mov"      , ClassALU     },
    OpMova            : { "mova"     , ClassALU     },
    OpAdd             : { "add.f"    , ClassALU     },
    OpMul             : { "mul.f"    , ClassALU     },
    OpMin             : { "min.f"    , ClassALU     },
    OpMax             : { "max.f"    , ClassALU     },
    OpCmp             : { "cmps.f"   , ClassALU     },
    OpMad             : { "mad.f32"  , ClassALU     },
    OpMadsh           : { "madsh.m16", ClassALU     },
    OpSel             : { "sel.b32"  , ClassALU     },
    OpRcp             : { "rcp"      , ClassSFU     },
    OpRsq             : { "rsq"      , ClassSFU     },
    OpSin             : { "sin"      , ClassSFU     },
    OpCos             : { "cos"      , ClassSFU     },
    OpLog2            : { "log2"     , ClassSFU     },
    OpExp2            : { "exp2"     , ClassSFU     },
    OpSam             : { "sam"      , ClassTexture },
    OpIsam            : { "isam"     , ClassTexture },
    OpGetSize         : { "getsize"  , ClassTexture },
    OpBaryF           : { "bary.f"   , ClassMemory  },
    OpLdg             : { "ldg"      , ClassMemory  },
    OpStg             : { "stg"      , ClassMemory  },
    OpLdl             : { "ldl"      , ClassMemory  },
    OpStl             : { "stl"      , ClassMemory  },
    OpLdib            : { "ldib"     , ClassMemory  },
    OpStib            : { "stib"     , ClassMemory  },
    OpBar             : { "bar"      , ClassMemory  },
    OpFence           : { "fence"    , ClassMemory  },
    OpMetaInput       : { "input"    , ClassInput   },
    OpMetaTexPrefetch : { "prefetch" , ClassMeta    },
    OpMetaCollect     : { "collect"  , ClassMeta    },
    OpMetaSplit       : { "split"    , ClassMeta    },
}

func (self Opcode) Class() Class {
    return _OpTab[self].class
}

func (self Opcode) String() string {
    if int(self) < len(_OpTab) {
        return _OpTab[self].name
    } else {
        return fmt.Sprintf("op(%d)", self)
    }
}

// RegKind tells which register file an instruction writes.
type RegKind uint8

const (
    RegNone RegKind = iota
    RegGPR
    RegAddr
    RegPred
)

type Dst struct {
    Kind   RegKind
    Wrmask uint
}

// BarrierClass is a bitset of shared-state accesses.
type BarrierClass uint32

const (
    BarrierEverything BarrierClass = 1 << iota
    BarrierSharedR
    BarrierSharedW
    BarrierImageR
    BarrierImageW
    BarrierBufferR
    BarrierBufferW
    BarrierArrayR
    BarrierArrayW
    BarrierPrivateR
    BarrierPrivateW
)

const (
    _BarrierArrayOnly = BarrierArrayR | BarrierArrayW
)

// Sysval identifies the system value an input materializes.
type Sysval uint8

const (
    SysvalNone Sysval = iota
    SysvalBaryPerspPixel
    SysvalFragCoord
    SysvalVertexId
)

// Instr is a node of the dependency graph. Instructions are owned by the
// Shader that created them and identified by Id, which is never reused.
type Instr struct {
    Id       int
    Op       Opcode
    Block    *Block
    Dst      Dst
    Prev     *Instr
    Srcs     []Src
    Address  *Instr
    Deps     []*Instr
    ArrayId  int
    Barrier  BarrierClass
    Conflict BarrierClass
    Sysval   Sysval
    Off      int
    Imm      float64
    Target   *Block
    Inv      bool
    Depth    int
    Unused   bool
}

// Src is a real data source. Array marks a read of the array last
// written by Def.
type Src struct {
    Def   *Instr
    Array bool
}

// Operand is the iteration view over every dependency slot of an
// instruction: slot 0 is the array-write pseudo operand, followed by
// the sources, the address register and finally the ordering deps.
type Operand struct {
    Slot  int
    Def   *Instr
    False bool
    Array bool
}

func (self *Instr) Class() Class {
    return self.Op.Class()
}

// IsMeta reports whether the instruction is a zero-cost pseudo-op. Inputs
// count as meta since they are already in registers at shader start.
func (self *Instr) IsMeta() bool {
    c := self.Op.Class()
    return c == ClassMeta || c == ClassInput
}

func (self *Instr) IsALU() bool {
    return self.Op.Class() == ClassALU
}

func (self *Instr) IsFlow() bool {
    return self.Op.Class() == ClassFlow
}

func (self *Instr) IsSFU() bool {
    return self.Op.Class() == ClassSFU
}

func (self *Instr) IsTex() bool {
    return self.Op.Class() == ClassTexture
}

func (self *Instr) IsMem() bool {
    return self.Op.Class() == ClassMemory
}

func (self *Instr) IsInput() bool {
    return self.Op == OpMetaInput
}

func (self *Instr) IsKill() bool {
    return self.Op == OpKill
}

func (self *Instr) IsMad() bool {
    return self.Op == OpMad || self.Op == OpMadsh
}

func (self *Instr) IsTexOrPrefetch() bool {
    return self.IsTex() || self.Op == OpMetaTexPrefetch
}

func (self *Instr) IsSFUOrMem() bool {
    return self.IsSFU() || self.IsMem()
}

func (self *Instr) WritesAddr() bool {
    return self.Dst.Kind == RegAddr
}

func (self *Instr) WritesPred() bool {
    return self.Dst.Kind == RegPred
}

func (self *Instr) WritesArray() bool {
    return self.Barrier & BarrierArrayW != 0
}

func (self *Instr) ReadsArray(id int) bool {
    return self.Barrier & BarrierArrayR != 0 && self.ArrayId == id
}

// DestRegs is the number of consecutive components the instruction
// occupies, up to and including the highest written one.
func (self *Instr) DestRegs() int {
    if self.Dst.Kind == RegNone {
        return 0
    } else {
        return bits.Len(self.Dst.Wrmask)
    }
}

func (self *Instr) numSlots() int {
    n := len(self.Srcs) + len(self.Deps) + 1
    if self.Address != nil {
        n++
    }
    return n
}

// Operand returns the dependency in slot n. The returned Def is nil for
// an empty slot.
func (self *Instr) Operand(n int) Operand {
    ns := len(self.Srcs)
    switch {
        case n == 0: {
            return Operand { Slot: 0, Def: self.Prev, Array: true }
        }

        case n <= ns: {
            s := self.Srcs[n - 1]
            return Operand { Slot: n, Def: s.Def, Array: s.Array }
        }

        case n == ns + 1 && self.Address != nil: {
            return Operand { Slot: n, Def: self.Address }
        }

        default: {
            i := n - ns - 1
            if self.Address != nil {
                i--
            }
            return Operand { Slot: n, Def: self.Deps[i], False: true }
        }
    }
}

// IsFalseDep reports whether slot n only orders the two instructions.
func (self *Instr) IsFalseDep(n int) bool {
    return self.Operand(n).False
}

// Operands calls fn for every non-empty dependency slot, in slot order.
func (self *Instr) Operands(fn func(op Operand)) {
    for i, n := 0, self.numSlots(); i < n; i++ {
        if op := self.Operand(i); op.Def != nil {
            fn(op)
        }
    }
}

// AddDep adds an ordering-only dependency on dep, if not already present.
func (self *Instr) AddDep(dep *Instr) {
    for _, v := range self.Deps {
        if v == dep {
            return
        }
    }
    self.Deps = append(self.Deps, dep)
}

func (self *Instr) dstString() string {
    switch self.Dst.Kind {
        case RegAddr : return "a0.x"
        case RegPred : return "p0.x"
        case RegGPR  : return fmt.Sprintf("%%%d.%s", self.Id, wrmaskString(self.Dst.Wrmask))
        default      : return ""
    }
}

func wrmaskString(m uint) string {
    var sb strings.Builder
    for i, c := range "xyzw" {
        if m & (1 << uint(i)) != 0 {
            sb.WriteRune(c)
        }
    }
    return sb.String()
}

func (self *Instr) String() string {
    var ops []string
    var buf strings.Builder

    /* destination */
    if d := self.dstString(); d != "" {
        buf.WriteString(d)
        buf.WriteString(" = ")
    }

    /* opcode and modifiers */
    buf.WriteString(self.Op.String())
    if self.Inv {
        buf.WriteString(".inv")
    }

    /* sources */
    self.Operands(func(op Operand) {
        switch {
            case op.Slot == 0 : ops = append(ops, fmt.Sprintf("arr[%d]<-%%%d", self.ArrayId, op.Def.Id))
            case op.False     : ops = append(ops, fmt.Sprintf("dep(%%%d)", op.Def.Id))
            default           : ops = append(ops, fmt.Sprintf("%%%d", op.Def.Id))
        }
    })

    /* immediates and branch targets */
    switch {
        case self.Op == OpMov && len(self.Srcs) == 0 : ops = append(ops, fmt.Sprintf("(%g)", self.Imm))
        case self.Op == OpMetaSplit                  : ops = append(ops, fmt.Sprintf("off:%d", self.Off))
        case self.Target != nil                      : ops = append(ops, fmt.Sprintf("bb_%d", self.Target.Id))
    }

    /* join them together */
    if len(ops) != 0 {
        buf.WriteString(" ")
        buf.WriteString(strings.Join(ops, ", "))
    }
    return buf.String()
}
