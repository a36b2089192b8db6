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
    `strings`
)

// String dumps every block with the position of each instruction, in the
// current order.
func (self *Shader) String() string {
    pc := 0
    buf := make([]string, 0, len(self.instrs) + len(self.Blocks))

    /* print every block */
    for _, bb := range self.Blocks {
        buf = append(buf, fmt.Sprintf("%06x | bb_%d:%s", pc, bb.Id, blockEdges(bb)))
        for _, ins := range bb.Instrs {
            buf = append(buf, fmt.Sprintf("%06x |     %s", pc, ins))
            pc++
        }
    }

    /* join them together */
    return fmt.Sprintf(
        "Shader {\n%s\n}",
        strings.Join(buf, "\n"),
    )
}

func blockEdges(bb *Block) string {
    var ps []string
    for _, p := range bb.Predecessors {
        ps = append(ps, fmt.Sprintf("bb_%d", p.Id))
    }
    if len(ps) == 0 {
        return ""
    } else {
        return " ; preds: " + strings.Join(ps, ", ")
    }
}
