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

// Unbatch hands the rows of a vector subtree to the row engine one at
// a time. Every value is copied out, so a row stays valid after the
// batch it came from is reused.

func (run *Runner) unbatchInit() error {
	run.state.OprUnbatchState = OprUnbatchState{}
	return nil
}

func (run *Runner) unbatchNext() (Row, bool, error) {
	st := &run.state.OprUnbatchState
	desc := run.op.Desc
	for {
		if batch := st.batch; batch != nil {
			for st.pos < batch.Count {
				i := st.pos
				st.pos++
				if batch.Skip[i] {
					continue
				}
				row := make(Row, len(batch.Cols))
				for j := range batch.Cols {
					col, err := batch.Column(j)
					if err != nil {
						return nil, false, err
					}
					row[j] = col.GetValue(i)
					row[j].Typ = desc.Attrs[j].Typ
				}
				return row, true, nil
			}
			if batch.Finished {
				st.done = true
			}
		}
		if st.done {
			st.batch = nil
			return nil, false, nil
		}
		batch, res, err := run.children[0].Execute()
		if err != nil {
			return nil, false, err
		}
		if res == Done {
			st.done = true
			continue
		}
		st.batch = batch
		st.pos = 0
	}
}

func (run *Runner) unbatchReScan() error {
	run.state.OprUnbatchState = OprUnbatchState{}
	return nil
}

func (run *Runner) unbatchClose() error {
	run.state.OprUnbatchState = OprUnbatchState{done: true}
	return nil
}
