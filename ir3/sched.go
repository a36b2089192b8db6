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
    `math`

    `github.com/davecgh/go-spew/spew`
    `github.com/freedreno/ir3sched/internal/opts`
)

const (
    _LiveHigh = 16 * 4
    _LiveMid  = 4 * 4
)

const (
    _ThresholdHigh = 4
    _ThresholdLow  = 6
)

type _MemoKind uint8

const (
    _MemoUnknown _MemoKind = iota
    _MemoNone
    _MemoInstr
)

// _Memo caches the result of the recursive candidate search for one
// instruction.
type _Memo struct {
    kind _MemoKind
    ins  *Instr
}

type _SchedState struct {
    scheduled bool
    useCount  int
    origin    *Instr
    memo      _Memo
}

// _Notes records why the candidate search came back empty.
type _Notes struct {
    blockedKill  bool
    addrConflict bool
    predConflict bool
}

type _SchedCtx struct {
    sh    *Shader
    o     *opts.Options
    bb    *Block
    last  *Instr
    addr  *Instr
    pred  *Instr
    live  int
    work  []*Instr
    state []_SchedState
}

func newSchedCtx(sh *Shader, o *opts.Options) *_SchedCtx {
    return &_SchedCtx {
        sh    : sh,
        o     : o,
        state : make([]_SchedState, sh.NumInstrs()),
    }
}

func (self *_SchedCtx) st(ins *Instr) *_SchedState {
    for ins.Id >= len(self.state) {
        self.state = append(self.state, _SchedState{})
    }
    return &self.state[ins.Id]
}

func (self *_SchedCtx) isScheduled(ins *Instr) bool {
    return self.st(ins).scheduled
}

func isPassthrough(ins *Instr) bool {
    return ins.Op == OpMetaCollect || ins.Op == OpMetaSplit
}

func (self *_SchedCtx) useInstr(ins *Instr) {
    if isPassthrough(ins) {
        self.useEachSrc(ins)
    } else {
        self.st(ins).useCount++
    }
}

func (self *_SchedCtx) useEachSrc(ins *Instr) {
    ins.Operands(func(op Operand) {
        if !op.False {
            self.useInstr(op.Def)
        }
    })
}

func (self *_SchedCtx) unuseEachSrc(ins *Instr) {
    ins.Operands(func(op Operand) {
        if op.False || op.Def.Block != ins.Block {
            return
        }

        /* pass through to the real sources */
        if isPassthrough(op.Def) {
            self.unuseEachSrc(op.Def)
            return
        }

        /* retire the value on it's last use */
        if st := self.st(op.Def); st.useCount > 0 {
            if st.useCount--; st.useCount == 0 {
                self.live -= op.Def.DestRegs()
            }
        }
    })
}

func (self *_SchedCtx) updateUseCount() {
    for i := range self.state {
        self.state[i].useCount = 0
    }

    /* count every use of every value */
    self.sh.ForEachInstr(func(ins *Instr) {
        if !isPassthrough(ins) {
            self.useEachSrc(ins)
        }
    })

    /* shader outputs are also used */
    for _, v := range self.sh.Outputs {
        self.useInstr(v)
    }
}

func (self *_SchedCtx) updateLiveValues(ins *Instr) {
    if !isPassthrough(ins) {
        self.live += ins.DestRegs()
        self.unuseEachSrc(ins)
    }
}

// transferUse accounts for clone being a new user of every source of the
// already scheduled orig. This may make a value live again.
func (self *_SchedCtx) transferUse(orig *Instr, clone *Instr) {
    clone.Operands(func(op Operand) {
        if !op.False {
            self.live += op.Def.DestRegs()
            self.useInstr(op.Def)
        }
    })
    self.clearCache(orig)
}

// clearCache invalidates every cached search result that returned ins or
// found nothing. A nil ins invalidates everything.
func (self *_SchedCtx) clearCache(ins *Instr) {
    for _, v := range self.work {
        st := self.st(v)
        if ins == nil || st.memo.kind == _MemoNone || (st.memo.kind == _MemoInstr && st.memo.ins == ins) {
            st.memo = _Memo{}
        }
    }
}

func (self *_SchedCtx) newInstr(op Opcode) *Instr {
    ins := self.sh.newInstr(self.bb, op)
    self.st(ins).scheduled = true
    self.bb.append(ins)
    return ins
}

func (self *_SchedCtx) emitNops(n int) {
    for ; n > 0; n-- {
        self.newInstr(OpNop)
        countNop()
    }
}

func (self *_SchedCtx) dequeue(ins *Instr) {
    for i, v := range self.work {
        if v == ins {
            self.work = append(self.work[:i], self.work[i + 1:]...)
            return
        }
    }
}

func (self *_SchedCtx) schedule(ins *Instr) {
    if ins.Block != self.bb {
        panic("sched: scheduling an instruction from another block")
    }

    /* back-to-back sfu or memory instructions need a nop between them */
    if self.last != nil && self.last.IsSFUOrMem() && ins.IsSFUOrMem() {
        self.emitNops(1)
    }

    /* remove from the depth list */
    self.dequeue(ins)

    /* take the address register */
    if ins.WritesAddr() {
        if self.addr != nil {
            panic("sched: address register is already held")
        }
        self.addr = ins
    }

    /* take the predicate register */
    if ins.WritesPred() {
        if self.pred != nil {
            panic("sched: predicate register is already held")
        }
        self.pred = ins
    }

    /* append to the block */
    self.st(ins).scheduled = true
    self.bb.Instrs = append(self.bb.Instrs, ins)
    self.last = ins
    countScheduled()
    self.o.Trace("sched: schedule", slog.String("instr", ins.String()), slog.Int("live", self.live))

    /* update live values and invalidate the search cache */
    self.updateLiveValues(ins)
    if ins.WritesAddr() || ins.WritesPred() || ins.IsInput() {
        self.clearCache(nil)
    } else {
        self.clearCache(ins)
    }
}

// deepest removes and returns the deepest instruction of srcs, preferring
// the first one on ties.
func deepest(srcs []*Instr) *Instr {
    id := -1
    for i, v := range srcs {
        if v != nil && (id < 0 || v.Depth > srcs[id].Depth) {
            id = i
        }
    }
    if id < 0 {
        return nil
    }
    d := srcs[id]
    srcs[id] = nil
    return d
}

// couldSched reports whether ins would be ready if src was scheduled.
func (self *_SchedCtx) couldSched(ins *Instr, src *Instr) bool {
    ok := true
    ins.Operands(func(op Operand) {
        if op.Def != src && !self.isScheduled(op.Def) {
            ok = false
        }
    })
    return ok
}

// checkInstr reports whether ins may be scheduled now, regardless of
// delays. It must not be blocked by the use of address or predicate
// registers, and kill must come after every bary.f.
func (self *_SchedCtx) checkInstr(notes *_Notes, ins *Instr) bool {
    if ins.WritesAddr() {
        ready := false
        for _, v := range self.sh.Indirects {
            if v.Address == ins && self.couldSched(v, ins) {
                ready = true
                break
            }
        }

        /* don't write a new address before anything can read it */
        if !ready {
            return false
        }
    }

    /* wait for the address register to be free */
    if ins.WritesAddr() && self.addr != nil {
        notes.addrConflict = true
        return false
    }

    /* wait for the predicate register to be free */
    if ins.WritesPred() && self.pred != nil {
        notes.predConflict = true
        return false
    }

    /* the thread must not be killed before end-input is hit */
    if ins.IsKill() {
        for _, v := range self.sh.Baryfs {
            if !v.Unused && !self.isScheduled(v) {
                notes.blockedKill = true
                return false
            }
        }
    }

    /* all checked ok */
    return true
}

// findInstrRecursive finds the best instruction to schedule from ins or,
// recursively, it's unscheduled sources in the same block.
func (self *_SchedCtx) findInstrRecursive(notes *_Notes, ins *Instr) *Instr {
    var srcs []*Instr

    /* already scheduled */
    if self.isScheduled(ins) {
        return nil
    }

    /* check for cached results */
    switch m := self.st(ins).memo; m.kind {
        case _MemoNone  : return nil
        case _MemoInstr : return m.ins
    }

    /* find unscheduled sources */
    ins.Operands(func(op Operand) {
        if !self.isScheduled(op.Def) && op.Def.Block == ins.Block {
            srcs = append(srcs, op.Def)
        }
    })

    /* all sources are scheduled */
    if len(srcs) == 0 {
        if !self.checkInstr(notes, ins) {
            return nil
        }
        self.st(ins).memo = _Memo { kind: _MemoInstr, ins: ins }
        return ins
    }

    /* search the deepest sources first */
    for src := deepest(srcs); src != nil; src = deepest(srcs) {
        if c := self.findInstrRecursive(notes, src); c != nil && self.checkInstr(notes, c) {
            self.st(ins).memo = _Memo { kind: _MemoInstr, ins: c }
            return c
        }
    }

    /* nothing can be scheduled */
    self.st(ins).memo = _Memo { kind: _MemoNone }
    return nil
}

// liveEffect is the net change of live values if ins was scheduled.
func (self *_SchedCtx) liveEffect(ins *Instr) int {
    add := ins.DestRegs()
    sub := 0

    /* scan every source */
    ins.Operands(func(op Operand) {
        src := op.Def
        if op.False || src.Block != ins.Block {
            return
        }

        /* split just passes things along to the real source */
        if src.Op == OpMetaSplit {
            src = src.Srcs[0].Def
        }

        /* collect only frees it's registers when all sources are on their last use */
        if src.Op == OpMetaCollect {
            last := true
            src.Operands(func(v Operand) {
                if self.st(v.Def).useCount > 1 {
                    last = false
                }
            })
            if last {
                sub += src.DestRegs()
            }
        } else if self.st(src).useCount == 1 {
            sub += src.DestRegs()
        }
    })

    /* net effect */
    return add - sub
}

func (self *_SchedCtx) findEligible(notes *_Notes, soft bool) *Instr {
    rank := math.MaxInt32
    depth := 0
    var best *Instr

    /* find the deepest candidate, meta instructions go first */
    for i := len(self.work) - 1; i >= 0; i-- {
        if c := self.findInstrRecursive(notes, self.work[i]); c != nil {
            if c.IsMeta() {
                return c
            } else if c.Depth > depth {
                depth = c.Depth
            }
        }
    }

    /* rank all the candidates, the search results are cached at this point */
    for i := len(self.work) - 1; i >= 0; i-- {
        c := self.findInstrRecursive(notes, self.work[i])
        if c == nil {
            continue
        }

        /* don't schedule shallow instructions too early if they increase register pressure */
        le := self.liveEffect(c)
        if le >= 1 {
            threshold := _ThresholdLow
            if self.live > _LiveMid {
                threshold = _ThresholdHigh
            }
            if depth - c.Depth > threshold {
                continue
            }
        }

        /* prefer instructions that stall less */
        r := delayCalc(self.bb, len(self.bb.Instrs), c, soft, false)

        /* under pressure, prefer instructions that reduce live values */
        if self.live > _LiveHigh {
            r = le
        } else if self.live > _LiveMid {
            r += le
        }

        /* keep the first best one */
        if r < rank {
            best = c
            rank = r
        }
    }

    /* found the best instruction */
    return best
}

func (self *_SchedCtx) originOf(ins *Instr) *Instr {
    if o := self.st(ins).origin; o != nil {
        return o
    } else {
        return ins
    }
}

// splitInstr clones orig, which is already scheduled, into a new
// unscheduled instruction in the current block.
func (self *_SchedCtx) splitInstr(orig *Instr) *Instr {
    src := self.originOf(orig)
    ret := self.sh.clone(orig, self.bb)
    self.st(ret).origin = src
    self.work = insertByDepth(self.work, ret)
    self.transferUse(orig, ret)
    countClone()
    self.o.Trace("sched: split", slog.String("orig", orig.String()), slog.Int("clone", ret.Id))
    return ret
}

// splitAddr remaps every unscheduled indirect access using the current
// address register to a clone of the instruction that wrote it, then
// releases the register.
func (self *_SchedCtx) splitAddr() *Instr {
    var clone *Instr
    countSplit()

    /* remap the remaining users */
    for _, v := range self.sh.Indirects {
        if !self.isScheduled(v) && v.Address == self.addr {
            if clone == nil {
                clone = self.splitInstr(self.addr)
            }
            v.Address = clone
        }
    }

    /* the register is free now, which changes what can be scheduled */
    self.addr = nil
    self.clearCache(nil)
    return clone
}

// splitPred does the same as splitAddr for the predicate register, whose
// users read it as their first source.
func (self *_SchedCtx) splitPred() *Instr {
    var clone *Instr
    countSplit()

    /* remap the remaining users */
    for _, v := range self.sh.Predicates {
        if !self.isScheduled(v) && len(v.Srcs) != 0 && v.Srcs[0].Def == self.pred {
            if clone == nil {
                clone = self.splitInstr(self.pred)
            }
            v.Srcs[0].Def = clone
        }
    }

    /* the register is free now, which changes what can be scheduled */
    self.pred = nil
    self.clearCache(nil)
    return clone
}

func (self *_SchedCtx) fail(reason string) error {
    err := SchedError {
        Block  : self.bb.Id,
        Reason : reason,
    }

    /* dump the remaining instructions when debugging */
    self.o.Log().Error("sched: failed", slog.String("error", err.Error()))
    if self.o.Debug {
        cfg := spew.ConfigState { Indent: "  ", MaxDepth: 2, DisablePointerMethods: true }
        self.o.Log().Debug("sched: unscheduled", slog.String("dump", cfg.Sdump(self.work)))
    }
    return err
}

// condition makes sure the predicate register holds the block condition
// at the end of the block, rematerializing it if another predicate write
// took the register in between.
func (self *_SchedCtx) condition() (*Instr, error) {
    cond := self.bb.Condition
    if cond == nil {
        return nil, self.fail("conditional branch without a condition")
    }

    /* the condition is still there */
    if self.pred != nil && self.originOf(self.pred) == cond {
        return self.pred, nil
    }

    /* every user of the current predicate value has been scheduled */
    self.pred = nil
    countSplit()
    ins := self.splitInstr(cond)

    /* schedule the clone right away */
    delay := delayCalc(self.bb, len(self.bb.Instrs), ins, false, false)
    self.emitNops(delay)
    self.schedule(ins)
    return ins, nil
}

func (self *_SchedCtx) terminate() error {
    bb := self.bb
    switch bb.NumSuccessors() {
        case 2: {
            pred, err := self.condition()
            if err != nil {
                return err
            }

            /* the branch reads the predicate on it's first cycle */
            self.emitNops(_BranchDelay - distance(bb, len(bb.Instrs), pred, _BranchDelay, false, nil))

            /* "else" first, since the "then" block usually ends up falling through */
            br := self.newInstr(OpBr)
            br.Inv = true
            br.Target = bb.Successors[1]
            br.Srcs = []Src {{ Def: pred }}

            /* branch to "then" */
            br = self.newInstr(OpBr)
            br.Target = bb.Successors[0]
            br.Srcs = []Src {{ Def: pred }}
        }

        case 1: {
            jmp := self.newInstr(OpJump)
            jmp.Target = bb.Successors[0]
        }
    }
    return nil
}

func (self *_SchedCtx) schedBlock(bb *Block) error {
    self.bb = bb
    self.last = nil
    self.addr = nil
    self.pred = nil
    self.work = self.work[:0]

    /* move all instructions out of the block */
    ins := bb.Instrs
    bb.Instrs = make([]*Instr, 0, len(ins))

    /* inputs go first, then the texture prefetches which may overwrite dead inputs */
    for _, v := range ins {
        if v.IsInput() {
            self.schedule(v)
        }
    }
    for _, v := range ins {
        if v.Op == OpMetaTexPrefetch {
            self.schedule(v)
        }
    }

    /* everything else goes to the depth list */
    for _, v := range ins {
        st := self.st(v)
        st.memo = _Memo{}
        if !st.scheduled {
            self.work = insertByDepth(self.work, v)
        }
    }

    /* schedule until the depth list is empty */
    for len(self.work) != 0 {
        var notes _Notes
        var next *Instr

        /* try the optimistic delays first */
        if next = self.findEligible(&notes, true); next == nil {
            next = self.findEligible(&notes, false)
        }

        /* insert nops to cover the delay if nothing else can fill it */
        if next != nil {
            delay := delayCalc(bb, len(bb.Instrs), next, false, false)
            if delay > MaxDelay {
                return DelayError { Block: bb.Id, Instr: next.Id, Delay: delay }
            }
            if delay > 0 {
                self.o.Trace("sched: delay", slog.Int("instr", next.Id), slog.Int("delay", delay))
            }
            self.emitNops(delay)
            self.schedule(next)
            continue
        }

        /* blocked on address / predicate register, break the deadlock by cloning the writer */
        switch {
            case notes.addrConflict : self.splitAddr()
            case notes.predConflict : self.splitPred()
            case notes.blockedKill  : return self.fail("kill is blocked on an unscheduled bary.f")
            default                 : return self.fail("no eligible instruction")
        }
    }

    /* branch to the successors */
    return self.terminate()
}

// Sched is the list scheduler. It orders the instructions of every block
// to honor delay slots and special register usage, inserting nops where
// nothing else can be issued.
type Sched struct{}

func (Sched) Apply(sh *Shader, o *opts.Options) error {
    ctx := newSchedCtx(sh, o)
    ctx.updateUseCount()

    /* schedule every block */
    for _, bb := range sh.Blocks {
        ctx.live = 0
        if err := ctx.schedBlock(bb); err != nil {
            return err
        }
    }
    return nil
}
