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

    `github.com/freedreno/ir3sched/internal/opts`
)

// Pass is a transformation applied to a whole shader.
type Pass interface {
    Apply(*Shader, *opts.Options) error
}

type PassDescriptor struct {
    Pass Pass
    Name string
}

var Passes = [...]PassDescriptor {
    { Name: "Depth Analysis"           , Pass: new(Depth) },
    { Name: "List Scheduling"          , Pass: new(Sched) },
    { Name: "Inter-Block Legalization" , Pass: new(Legalize) },
}

// Schedule runs every scheduling pass over sh. Ordering dependencies must
// have been added with AddDeps beforehand.
func Schedule(sh *Shader, o *opts.Options) error {
    log := o.Log()

    /* reject malformed dependency graphs */
    if o.CheckAcyclic {
        if err := CheckAcyclic(sh); err != nil {
            return err
        }
    }

    /* run every pass */
    for _, p := range Passes {
        o.Trace("pass: begin", slog.String("name", p.Name))
        if err := p.Pass.Apply(sh, o); err != nil {
            log.Error("pass: failed", slog.String("name", p.Name), slog.Any("error", err))
            return err
        }
        o.Trace("pass: end", slog.String("name", p.Name), slog.Int("instrs", sh.NumInstrs()))
    }

    /* check the result */
    if o.Verify {
        if issues := Verify(sh); len(issues) != 0 {
            return VerifyError { Issues: issues }
        }
    }

    /* draw the final schedule */
    if o.DrawSchedule != "" {
        if err := DrawSchedule(o.DrawSchedule, sh); err != nil {
            log.Warn("unable to draw the schedule", slog.String("file", o.DrawSchedule), slog.Any("error", err))
        }
    }
    return nil
}
