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
    `os`
    `sort`

    `github.com/ajstarks/svgo`
)

type _LiveRange struct {
    def  *Instr
    rows []int
}

func liveRanges(sh *Shader, rows map[*Instr]int) []*_LiveRange {
    var ret []*_LiveRange
    lr := make(map[*Instr]*_LiveRange)

    /* every value defined in a register */
    sh.ForEachInstr(func(ins *Instr) {
        if ins.Dst.Kind != RegNone && ins.Op != OpNop {
            r := &_LiveRange { def: ins, rows: []int { rows[ins] } }
            lr[ins] = r
            ret = append(ret, r)
        }
    })

    /* add every use */
    sh.ForEachInstr(func(ins *Instr) {
        ins.Operands(func(op Operand) {
            if r, ok := lr[op.Def]; ok && !op.False {
                r.rows = append(r.rows, rows[ins])
            }
        })
    })

    /* uses may come before the definition through a back edge */
    for _, r := range ret {
        sort.Ints(r.rows)
    }
    return ret
}

// DrawSchedule renders the scheduled shader as an SVG timeline: one row
// per instruction, and one column per value spanning from its definition
// to its last use.
func DrawSchedule(fn string, sh *Shader) error {
    maxi := 0
    leni := 0
    rows := make(map[*Instr]int)
    head := make([]int, len(sh.Blocks))

    /* assign a row to every instruction */
    for i, bb := range sh.Blocks {
        head[i] = leni
        leni++
        for _, v := range bb.Instrs {
            if s := v.String(); len(s) > maxi {
                maxi = len(s)
            }
            rows[v] = leni
            leni++
        }
    }

    /* compute the layout */
    lr := liveRanges(sh, rows)
    insw := maxi * 9 + 120
    regw := 32

    /* create the output file */
    fp, err := os.OpenFile(fn, os.O_RDWR | os.O_CREATE | os.O_TRUNC, 0644)
    if err != nil {
        return err
    }

    /* white background */
    p := svg.New(fp)
    p.Start(len(lr) * regw + insw + 100, leni * 24 + 100)
    if _, err = fp.WriteString(`<rect width="100%" height="100%" fill="white" />` + "\n"); err != nil {
        fp.Close()
        return err
    }

    /* draw the instructions */
    for i, bb := range sh.Blocks {
        h := 100 + head[i] * 24
        p.Text(16, h, fmt.Sprintf("bb_%d", bb.Id), "fill:gray;font-size:16px;font-family:monospace")
        p.Line(10, h - 16, insw + 5, h - 16, "stroke:lightgray")

        /* nops are grayed out */
        for _, v := range bb.Instrs {
            y := 100 + rows[v] * 24
            style := "fill:black;font-size:16px;font-family:monospace;text-anchor:end"
            if v.Op == OpNop {
                style = "fill:lightgray;font-size:16px;font-family:monospace;text-anchor:end"
            }
            p.Text(insw, y, v.String(), style)
            p.Line(insw + 10, y - 5, len(lr) * regw + insw + 50, y - 5, "stroke:whitesmoke")
        }
    }

    /* draw the live ranges */
    for i, r := range lr {
        x := insw + i * regw + 50
        p.Text(x, 70, fmt.Sprintf("%%%d", r.def.Id), "fill:black;font-size:12px;font-family:monospace;text-anchor:middle")
        p.Line(x, 95 + r.rows[0] * 24, x, 95 + r.rows[len(r.rows) - 1] * 24, "stroke:black;stroke-width:3")
        for _, n := range r.rows {
            if n == rows[r.def] {
                p.Circle(x, 95 + n * 24, 4, "fill:white;stroke:black;stroke-width:2")
            } else {
                p.Circle(x, 95 + n * 24, 4, "fill:black;stroke:black;stroke-width:2")
            }
        }
    }

    /* flush the file */
    p.End()
    return fp.Close()
}
