// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package compute

import (
	"github.com/daviszhen/vexec/pkg/chunk"
	"github.com/daviszhen/vexec/pkg/plan"
)

// ExecScanQual applies the implicitly AND-ed quals to batch in place.
// A row whose qual is false is marked skipped, and so is a null one
// unless resultForNull is set. Every qual runs once over the batch,
// even when an earlier one emptied it, and never reads rows an earlier
// qual rejected. It reports whether any row survives.
func (exec *ExprExec) ExecScanQual(quals []*plan.Expr, batch *chunk.Batch, resultForNull bool) (bool, error) {
	count := batch.Count
	for _, qual := range quals {
		res, err := exec.Eval(qual, batch, batch.Skip)
		if err != nil {
			return false, err
		}
		for i := 0; i < count; i++ {
			if batch.Skip[i] {
				continue
			}
			if res.Nulls[i] {
				if !resultForNull {
					batch.MarkSkip(i)
				}
				continue
			}
			if !res.Bool(i) {
				batch.MarkSkip(i)
			}
		}
	}
	return !batch.IsEmpty(), nil
}

// Project evaluates targets over in and deep copies the results into
// out. out keeps the row count, skip marks and end flag of in.
func (exec *ExprExec) Project(targets []*plan.Expr, in, out *chunk.Batch) error {
	out.Clear()
	count := in.Count
	for j, target := range targets {
		col, err := exec.Eval(target, in, in.Skip)
		if err != nil {
			return err
		}
		out.Cols[j].CopyFrom(col, count)
	}
	out.Count = count
	copy(out.Skip[:count], in.Skip[:count])
	out.Finished = in.Finished
	return nil
}
