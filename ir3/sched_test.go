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
    `sync/atomic`
    `testing`

    `github.com/freedreno/ir3sched/internal/opts`
    `github.com/stretchr/testify/require`
)

var testOpts = opts.Options {
    Verify       : true,
    CheckAcyclic : true,
}

type _Counters struct {
    scheduled uint64
    nops      uint64
    splits    uint64
    clones    uint64
}

func counters() _Counters {
    return _Counters {
        scheduled : atomic.LoadUint64(&ScheduledCount),
        nops      : atomic.LoadUint64(&NopCount),
        splits    : atomic.LoadUint64(&SplitCount),
        clones    : atomic.LoadUint64(&CloneCount),
    }
}

func (self _Counters) since(old _Counters) _Counters {
    return _Counters {
        scheduled : self.scheduled - old.scheduled,
        nops      : self.nops - old.nops,
        splits    : self.splits - old.splits,
        clones    : self.clones - old.clones,
    }
}

func names(bb *Block, tab map[*Instr]string) []string {
    ret := make([]string, 0, len(bb.Instrs))
    for _, v := range bb.Instrs {
        if s, ok := tab[v]; ok {
            ret = append(ret, s)
        } else {
            ret = append(ret, v.Op.String())
        }
    }
    return ret
}

func TestSched_Scenario(t *testing.T) {
    sh, v := simpleShader()
    c := counters()
    require.NoError(t, Schedule(sh, &testOpts))
    require.Equal(t, []string {
        "a", "b", "nop", "nop", "nop", "c", "nop", "nop", "nop", "d",
    }, names(sh.Blocks[0], map[*Instr]string {
        v[0]: "a", v[1]: "b", v[2]: "c", v[3]: "d",
    }))
    d := counters().since(c)
    require.Equal(t, uint64(4), d.scheduled)
    require.Equal(t, uint64(6), d.nops)
    require.Zero(t, d.splits)
}

func TestSched_AddressDeadlock(t *testing.T) {
    sh := NewShader()
    bb := sh.NewBlock()
    x := bb.Imm(1.0)
    y := bb.Imm(2.0)
    a0 := bb.Mova(x)
    a1 := bb.Mova(y)
    r1 := bb.LoadArray(0, nil, a0)
    r2 := bb.LoadArray(1, nil, a1)
    sh.Output(r1)
    sh.Output(r2)

    /* the first address must be released before the second one is loaded */
    c := counters()
    require.NoError(t, Schedule(sh, &testOpts))
    d := counters().since(c)
    require.Equal(t, uint64(1), d.splits)
    require.Zero(t, d.clones)
    require.Equal(t, a0, r1.Address)
    require.Equal(t, a1, r2.Address)
    require.Less(t, bb.indexOf(r2), bb.indexOf(a0))
}

func TestSched_AddressClone(t *testing.T) {
    sh := NewShader()
    bb := sh.NewBlock()
    x := bb.Imm(1.0)
    a0 := bb.Mova(x)
    r1 := bb.LoadArray(0, nil, a0)
    y := bb.Emit(OpAdd, r1, r1)
    a1 := bb.Mova(y)
    r2 := bb.LoadArray(1, nil, a1)
    r3 := bb.LoadArray(0, nil, a0)
    r3.Srcs = append(r3.Srcs, Src { Def: r2 })
    sh.Output(r3)

    /* r3 still needs a0 after a1 is needed */
    c := counters()
    require.NoError(t, Schedule(sh, &testOpts))
    d := counters().since(c)
    require.Equal(t, uint64(1), d.clones)
    require.Equal(t, uint64(2), d.splits)

    /* r3 reads a rematerialized address */
    a2 := r3.Address
    require.NotEqual(t, a0, a2)
    require.Equal(t, OpMova, a2.Op)
    require.Equal(t, x, a2.Srcs[0].Def)
    require.Equal(t, a0, r1.Address)
    require.Equal(t, []*Instr { x, a0, r1, y, a1, r2, a2, r3 }, filterNops(bb.Instrs))
}

func filterNops(v []*Instr) []*Instr {
    var ret []*Instr
    for _, ins := range v {
        if ins.Op != OpNop {
            ret = append(ret, ins)
        }
    }
    return ret
}

func TestSched_PredicateRelease(t *testing.T) {
    sh := NewShader()
    bb := sh.NewBlock()
    x := bb.Imm(1.0)
    y := bb.Imm(2.0)
    p0 := bb.CmpPred(x, y)
    k0 := bb.Kill(p0)
    p1 := bb.CmpPred(y, x)
    k1 := bb.Kill(p1)

    /* each kill must come before the other predicate is written */
    c := counters()
    require.NoError(t, Schedule(sh, &testOpts))
    d := counters().since(c)
    require.Equal(t, uint64(1), d.splits)
    require.Zero(t, d.clones)
    if bb.indexOf(p0) < bb.indexOf(p1) {
        require.Less(t, bb.indexOf(k0), bb.indexOf(p1))
    } else {
        require.Less(t, bb.indexOf(k1), bb.indexOf(p0))
    }
}

func TestSched_KillAfterBaryF(t *testing.T) {
    sh := NewShader()
    bb := sh.NewBlock()
    c1 := bb.Imm(1.0)
    c2 := bb.Emit(OpAdd, c1, c1)
    c3 := bb.Emit(OpAdd, c2, c2)
    bf := bb.BaryF(c3)
    x := bb.Imm(2.0)
    p := bb.CmpPred(x, x)
    k := bb.Kill(p)
    sh.Output(bf)
    require.NoError(t, Schedule(sh, &testOpts))
    require.Less(t, bb.indexOf(bf), bb.indexOf(k))
}

func TestSched_KillBlocked(t *testing.T) {
    sh := NewShader()
    bb := sh.NewBlock()
    next := sh.NewBlock()
    x := bb.Imm(1.0)
    p := bb.CmpPred(x, x)
    bb.Kill(p)
    sh.Link(bb, next)
    bf := next.BaryF(x)
    sh.Output(bf)

    /* the bary.f can never be scheduled before the kill */
    err := Schedule(sh, &testOpts)
    require.Error(t, err)
    require.IsType(t, SchedError{}, err)
    require.Equal(t, 0, err.(SchedError).Block)
}

func TestSched_InputsThenPrefetch(t *testing.T) {
    sh := NewShader()
    bb := sh.NewBlock()
    i1 := bb.Input(SysvalFragCoord, 1)
    pf := bb.Prefetch(1)
    i2 := bb.Input(SysvalVertexId, 1)
    s := bb.Emit(OpAdd, i1, i2)
    sh.Output(s)
    sh.Output(pf)
    require.NoError(t, Schedule(sh, &testOpts))
    require.ElementsMatch(t, []*Instr { i1, i2 }, bb.Instrs[:2])
    require.Equal(t, []*Instr { pf, s }, bb.Instrs[2:])
}

func TestSched_BackToBackSFU(t *testing.T) {
    sh := NewShader()
    bb := sh.NewBlock()
    x := bb.Imm(1.0)
    s1 := bb.SFU(OpRcp, x)
    s2 := bb.SFU(OpRsq, x)
    o := bb.Emit(OpAdd, s1, s2)
    sh.Output(o)
    require.NoError(t, Schedule(sh, &testOpts))

    /* exactly one nop in between */
    i, j := bb.indexOf(s1), bb.indexOf(s2)
    if i > j {
        i, j = j, i
    }
    require.Equal(t, 2, j - i)
    require.Equal(t, OpNop, bb.Instrs[i + 1].Op)
}

func TestSched_ConditionalBranch(t *testing.T) {
    sh := NewShader()
    bb := sh.NewBlock()
    then := sh.NewBlock()
    other := sh.NewBlock()
    x := bb.Imm(1.0)
    y := bb.Imm(2.0)
    p := bb.CmpPred(x, y)
    bb.SetCondition(p)
    sh.Link(bb, then, other)
    then.End()
    other.End()
    require.NoError(t, Schedule(sh, &testOpts))

    /* the predicate is read 6 cycles later */
    n := len(bb.Instrs)
    require.Equal(t, p, bb.Instrs[n - 9])
    for _, v := range bb.Instrs[n - 8:n - 2] {
        require.Equal(t, OpNop, v.Op)
    }

    /* branch to "else" first, then to "then" */
    br := bb.Instrs[n - 2]
    require.Equal(t, OpBr, br.Op)
    require.True(t, br.Inv)
    require.Equal(t, other, br.Target)
    require.Equal(t, p, br.Srcs[0].Def)
    br = bb.Instrs[n - 1]
    require.Equal(t, OpBr, br.Op)
    require.False(t, br.Inv)
    require.Equal(t, then, br.Target)
    require.Equal(t, p, br.Srcs[0].Def)
}

func TestSched_ConditionRematerialized(t *testing.T) {
    sh := NewShader()
    bb := sh.NewBlock()
    then := sh.NewBlock()
    other := sh.NewBlock()
    x := bb.Imm(1.0)
    y := bb.Imm(2.0)
    p0 := bb.CmpPred(x, x)
    p1 := bb.CmpPred(x, y)
    bb.Kill(p1)
    bb.SetCondition(p0)
    sh.Link(bb, then, other)
    then.End()
    other.End()
    require.NoError(t, Schedule(sh, &testOpts))

    /* the branch must test the block condition, not the kill predicate */
    br := bb.Instrs[len(bb.Instrs) - 1]
    require.Equal(t, OpBr, br.Op)
    if pr := br.Srcs[0].Def; pr != p0 {
        require.Equal(t, OpCmp, pr.Op)
        require.Equal(t, []Src { { Def: x }, { Def: x } }, pr.Srcs)
    }
}

func TestSched_Jump(t *testing.T) {
    sh := NewShader()
    bb := sh.NewBlock()
    next := sh.NewBlock()
    x := bb.Imm(1.0)
    sh.Link(bb, next)
    next.End(x)
    require.NoError(t, Schedule(sh, &testOpts))
    jmp := bb.Instrs[len(bb.Instrs) - 1]
    require.Equal(t, OpJump, jmp.Op)
    require.Equal(t, next, jmp.Target)
}

func TestSched_MemoInvalidation(t *testing.T) {
    sh := NewShader()
    bb := sh.NewBlock()
    x := bb.Imm(1.0)
    y := bb.Imm(2.0)
    a := bb.Emit(OpAdd, x, y)
    b := bb.Emit(OpMul, x, y)
    c := bb.Emit(OpMin, x, y)
    ctx := newSchedCtx(sh, &testOpts)
    ctx.work = []*Instr { a, b, c }

    /* entries that cached x or nothing are cleared */
    ctx.st(a).memo = _Memo { kind: _MemoInstr, ins: x }
    ctx.st(b).memo = _Memo { kind: _MemoNone }
    ctx.st(c).memo = _Memo { kind: _MemoInstr, ins: y }
    ctx.clearCache(x)
    require.Equal(t, _MemoUnknown, ctx.st(a).memo.kind)
    require.Equal(t, _MemoUnknown, ctx.st(b).memo.kind)
    require.Equal(t, _Memo { kind: _MemoInstr, ins: y }, ctx.st(c).memo)

    /* everything is cleared */
    ctx.clearCache(nil)
    require.Equal(t, _MemoUnknown, ctx.st(c).memo.kind)
}

func TestSched_LiveEffect(t *testing.T) {
    sh := NewShader()
    bb := sh.NewBlock()
    x := bb.Imm(1.0)
    y := bb.Imm(2.0)
    v := bb.Collect(x, y)
    s := bb.Split(v, 1)
    a := bb.Emit(OpAdd, x, y)
    b := bb.Emit(OpMul, s, y)
    sh.Output(a)
    sh.Output(b)
    ctx := newSchedCtx(sh, &testOpts)
    ctx.updateUseCount()

    /* collect and split are looked through */
    require.Equal(t, 2, ctx.st(x).useCount)
    require.Equal(t, 3, ctx.st(y).useCount)
    require.Equal(t, 1, ctx.liveEffect(a))
    require.Equal(t, 1, ctx.liveEffect(b))

    /* x is on it's last use */
    ctx.st(x).useCount = 1
    require.Equal(t, 0, ctx.liveEffect(a))
}

func TestSched_String(t *testing.T) {
    sh, _ := simpleShader()
    require.NoError(t, Schedule(sh, &testOpts))
    s := sh.String()
    require.Contains(t, s, "000000 | bb_0:")
    require.Contains(t, s, "000009 |     %3.x = mul.f %2, %2")
    require.Contains(t, s, "000000 |     %0.x = mov (1)")
}

// blockCtx prepares a scheduling context for the first block of sh with
// every instruction of the block still waiting in the depth list.
func blockCtx(sh *Shader) *_SchedCtx {
    ctx := newSchedCtx(sh, &testOpts)
    ctx.updateUseCount()
    ctx.bb = sh.Blocks[0]
    ctx.work = append(ctx.work, ctx.bb.Instrs...)
    ctx.bb.Instrs = nil
    return ctx
}

func (self *_SchedCtx) pick(soft bool) *Instr {
    var notes _Notes
    self.clearCache(nil)
    return self.findEligible(&notes, soft)
}

func TestSched_ShallowProducerNotHoisted(t *testing.T) {
    sh := NewShader()
    bb := sh.NewBlock()
    p := bb.Imm(1.0)
    q := bb.Emit(OpAdd, p, p)
    x := bb.Imm(2.0)
    ctx := blockCtx(sh)
    ctx.schedule(p)

    /* q has to wait 3 cycles for p while x is free, but far too shallow */
    q.Depth, x.Depth = 20, 1
    require.Equal(t, 3, delayCalc(bb, len(bb.Instrs), q, false, false))
    require.Equal(t, 0, delayCalc(bb, len(bb.Instrs), x, false, false))
    require.Equal(t, q, ctx.pick(true))

    /* within 6 of the deepest candidate it goes first */
    x.Depth = 14
    require.Equal(t, x, ctx.pick(true))

    /* more than 16 live values lower the threshold to 4 */
    ctx.live = 17
    require.Equal(t, q, ctx.pick(true))
    x.Depth = 16
    require.Equal(t, x, ctx.pick(true))
}

func TestSched_RegisterPressure(t *testing.T) {
    sh := NewShader()
    bb := sh.NewBlock()
    p := bb.Imm(1.0)
    m := bb.Emit(OpMov, p)
    x := bb.Imm(2.0)
    x.Dst.Wrmask = 0x3
    ctx := blockCtx(sh)
    ctx.schedule(p)
    m.Depth, x.Depth = 5, 5

    /* m retires p but has to wait for it, x is free but adds 2 live values */
    require.Equal(t, 0, ctx.liveEffect(m))
    require.Equal(t, 2, ctx.liveEffect(x))

    /* low pressure, delay only */
    ctx.live = 0
    require.Equal(t, x, ctx.pick(true))

    /* medium pressure, delay 0 + 2 beats delay 3 + 0 */
    ctx.live = 17
    require.Equal(t, x, ctx.pick(true))

    /* high pressure, only the live effect counts */
    ctx.live = 65
    require.Equal(t, m, ctx.pick(true))

    /* medium pressure with a wider x, delay 0 + 4 loses to delay 3 + 0 */
    x.Dst.Wrmask = 0xf
    ctx.live = 17
    require.Equal(t, m, ctx.pick(true))
}

func TestSched_SoftSFUDelay(t *testing.T) {
    sh := NewShader()
    bb := sh.NewBlock()
    p := bb.Imm(1.0)
    s := bb.SFU(OpRcp, p)
    u := bb.Emit(OpAdd, s, s)
    w := bb.Emit(OpMov, p)
    ctx := blockCtx(sh)
    ctx.schedule(p)
    ctx.schedule(s)

    /* the sfu counts as 4 cycles in the optimistic search, 0 otherwise */
    require.Equal(t, 4, delayCalc(bb, len(bb.Instrs), u, true, false))
    require.Equal(t, 0, delayCalc(bb, len(bb.Instrs), u, false, false))
    require.Equal(t, 3, delayCalc(bb, len(bb.Instrs), w, true, false))
    require.Equal(t, w, ctx.pick(true))
    require.Equal(t, u, ctx.pick(false))
}

// memoFill runs the candidate search once so every waiting instruction
// has a cached result.
func memoFill(t *testing.T, ctx *_SchedCtx) {
    var notes _Notes
    ctx.clearCache(nil)
    ctx.findEligible(&notes, true)
    for _, v := range ctx.work {
        require.NotEqual(t, _MemoUnknown, ctx.st(v).memo.kind, v.String())
    }
}

func TestSched_MemoClearedOnSchedule(t *testing.T) {
    sh := NewShader()
    bb := sh.NewBlock()
    x := bb.Imm(1.0)
    y := bb.Imm(2.0)
    p1 := bb.CmpPred(x, x)
    p2 := bb.CmpPred(x, x)
    a := bb.Emit(OpAdd, y, y)
    z := bb.Imm(3.0)
    ctx := blockCtx(sh)
    ctx.schedule(x)
    ctx.schedule(p1)
    memoFill(t, ctx)
    require.Equal(t, _Memo { kind: _MemoNone }, ctx.st(p2).memo)
    require.Equal(t, _Memo { kind: _MemoInstr, ins: y }, ctx.st(a).memo)
    require.Equal(t, _Memo { kind: _MemoInstr, ins: z }, ctx.st(z).memo)

    /* only results naming y or nothing are dropped */
    ctx.schedule(y)
    require.Equal(t, _MemoUnknown, ctx.st(a).memo.kind)
    require.Equal(t, _MemoUnknown, ctx.st(p2).memo.kind)
    require.Equal(t, _Memo { kind: _MemoInstr, ins: z }, ctx.st(z).memo)
}

func TestSched_MemoClearedOnRegisterWrite(t *testing.T) {
    for _, name := range []string { "address", "predicate", "input" } {
        sh := NewShader()
        bb := sh.NewBlock()
        x := bb.Imm(1.0)
        z := bb.Imm(2.0)
        w := bb.Mova(x)
        bb.LoadArray(0, nil, w)
        q := bb.CmpPred(x, x)
        i := bb.Input(SysvalFragCoord, 1)
        a := bb.Emit(OpAdd, z, z)
        ctx := blockCtx(sh)
        ctx.schedule(x)

        /* the input would be picked right away, keep it out of the search */
        ctx.dequeue(i)
        memoFill(t, ctx)
        require.Equal(t, _Memo { kind: _MemoInstr, ins: z }, ctx.st(a).memo)

        /* every cached result is dropped, even those not naming the writer */
        switch name {
            case "address"   : ctx.schedule(w)
            case "predicate" : ctx.schedule(q)
            case "input"     : ctx.work = append(ctx.work, i); ctx.schedule(i)
        }
        for _, v := range ctx.work {
            require.Equal(t, _MemoUnknown, ctx.st(v).memo.kind, "%s: %s", name, v)
        }
    }
}

func TestSched_MemoClearedOnSplit(t *testing.T) {
    sh := NewShader()
    bb := sh.NewBlock()
    x := bb.Imm(1.0)
    w1 := bb.Mova(x)
    r1 := bb.LoadArray(0, nil, w1)
    w2 := bb.Mova(x)
    r2 := bb.LoadArray(1, nil, w2)
    st := bb.StoreArray(2, nil, r2, w1)
    ctx := blockCtx(sh)
    ctx.schedule(x)
    ctx.schedule(w1)
    ctx.schedule(r1)

    /* st holds on to a0.x through w1 but needs r2, which needs w2 */
    var notes _Notes
    ctx.clearCache(nil)
    require.Nil(t, ctx.findEligible(&notes, false))
    require.True(t, notes.addrConflict)
    require.Equal(t, _MemoNone, ctx.st(w2).memo.kind)
    require.Equal(t, _MemoNone, ctx.st(st).memo.kind)

    /* the split remaps st and drops every stale result */
    clone := ctx.splitAddr()
    require.NotNil(t, clone)
    require.Equal(t, clone, st.Address)
    require.Equal(t, w1, r1.Address)
    for _, v := range ctx.work {
        require.Equal(t, _MemoUnknown, ctx.st(v).memo.kind, v.String())
    }

    /* w2 is free to go now */
    notes = _Notes{}
    require.Equal(t, w2, ctx.findEligible(&notes, false))
}

func TestSched_MemoClearedOnPredicateSplit(t *testing.T) {
    sh := NewShader()
    bb := sh.NewBlock()
    x := bb.Imm(1.0)
    p1 := bb.CmpPred(x, x)
    k1 := bb.Kill(p1)
    p2 := bb.CmpPred(x, x)
    k2 := bb.Kill(p2)
    ctx := blockCtx(sh)
    ctx.schedule(x)
    ctx.schedule(p1)
    memoFill(t, ctx)
    require.Equal(t, _Memo { kind: _MemoInstr, ins: k1 }, ctx.st(k1).memo)
    require.Equal(t, _MemoNone, ctx.st(k2).memo.kind)

    /* k1 moves to the clone, k2 keeps it's own predicate */
    clone := ctx.splitPred()
    require.Equal(t, clone, k1.Srcs[0].Def)
    require.Equal(t, p2, k2.Srcs[0].Def)
    require.Nil(t, ctx.pred)
    for _, v := range ctx.work {
        require.Equal(t, _MemoUnknown, ctx.st(v).memo.kind, v.String())
    }
}
