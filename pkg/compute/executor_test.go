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
	"context"
	"fmt"
	"testing"

	"github.com/lib/pq/oid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/vexec/pkg/chunk"
	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/plan"
	"github.com/daviszhen/vexec/pkg/storage"
	"github.com/daviszhen/vexec/pkg/util"
)

func testConfig(batchSize int) *util.Config {
	cfg := util.DefaultConfig()
	cfg.Vectorize.Enable = true
	cfg.Vectorize.BatchSize = batchSize
	return cfg
}

func mkRow(desc *common.TupleDesc, vals ...any) []common.Value {
	ret := make([]common.Value, len(vals))
	for i, v := range vals {
		typ := desc.Attrs[i].Typ
		switch x := v.(type) {
		case nil:
			ret[i] = common.NullValue(typ)
		case int:
			ret[i] = common.IntValue(typ, int64(x))
		case float64:
			ret[i] = common.FloatValue(typ, x)
		case string:
			ret[i] = common.StringValue(typ, x)
		case bool:
			ret[i] = common.BoolValue(typ, x)
		default:
			panic(fmt.Sprintf("usp %T", v))
		}
	}
	return ret
}

// makeTable creates name with the given columns and inserts rows.
func makeTable(t *testing.T, eng *Engine, name, kind string, cols []util.ColumnConfig, rows [][]any) storage.Relation {
	rel, err := eng.Storage().CreateTable(util.TableConfig{
		Name:    name,
		Storage: kind,
		Columns: cols,
	})
	require.NoError(t, err)
	desc := rel.Desc()
	switch r := rel.(type) {
	case *storage.HeapRelation:
		xid := eng.Storage().Xlog.Begin()
		for _, row := range rows {
			_, err = r.Insert(xid, mkRow(desc, row...))
			require.NoError(t, err)
		}
		require.NoError(t, eng.Storage().Xlog.Commit(xid))
	case *storage.ColumnRelation:
		for _, row := range rows {
			require.NoError(t, r.Append(mkRow(desc, row...)))
		}
		r.Flush()
	default:
		t.Fatalf("unexpected relation %T", rel)
	}
	return rel
}

var testCols = []util.ColumnConfig{
	{Name: "id", Type: "int4"},
	{Name: "name", Type: "text"},
	{Name: "score", Type: "float8"},
}

// testRows: id i, name n(i%3), score i/2 or null every fifth row.
func testRows(n int) [][]any {
	rows := make([][]any, n)
	for i := 0; i < n; i++ {
		var score any = float64(i) / 2
		if i%5 == 4 {
			score = nil
		}
		rows[i] = []any{i, fmt.Sprintf("n%d", i%3), score}
	}
	return rows
}

// countingScan counts the calls reaching the page cursor.
type countingScan struct {
	storage.PageScan
	next int
}

func (cs *countingScan) Next(ctx context.Context) (storage.Tuple, bool, error) {
	cs.next++
	return cs.PageScan.Next(ctx)
}

// vectorRunner plans sql and returns an initialized runner of the
// vectorized subtree below the Unbatch.
func vectorRunner(t *testing.T, eng *Engine, sql string) *Runner {
	root, uerr, err := eng.Plan(sql)
	require.NoError(t, err)
	require.Nil(t, uerr)
	require.Equal(t, plan.PT_Unbatch, root.Typ)
	run := NewRunner(eng.newEnv(context.Background(), storage.InvalidXid), root.Children[0])
	require.NoError(t, run.Init())
	return run
}

func TestVectorScanBatches(t *testing.T) {
	const cap = 8
	for _, kind := range []string{"heap", "temp", "column"} {
		t.Run(kind, func(t *testing.T) {
			eng := NewEngine(testConfig(cap))
			makeTable(t, eng, "t", kind, testCols, testRows(2*cap+5))
			run := vectorRunner(t, eng, "SELECT id, name FROM t")
			var cursor *countingScan
			if st := &run.state.OprVScanState; st.pageScan != nil {
				cursor = &countingScan{PageScan: st.pageScan}
				st.pageScan = cursor
			}
			fills := 0
			util.Open(util.FAULTS_SCOPE_EXEC)
			defer util.Close(util.FAULTS_SCOPE_EXEC)
			util.Register(util.FAULTS_SCOPE_EXEC, "vscan.fill", nil, func([]string) error {
				fills++
				return nil
			})

			var counts []int
			var finished []bool
			var ids []int64
			for {
				batch, res, err := run.Execute()
				require.NoError(t, err)
				if res == Done {
					require.NotNil(t, batch)
					require.Zero(t, batch.Count)
					break
				}
				counts = append(counts, batch.Count)
				finished = append(finished, batch.Finished)
				col, err := batch.Column(0)
				require.NoError(t, err)
				for i := 0; i < batch.Count; i++ {
					if !batch.Skip[i] {
						ids = append(ids, col.Int64(i))
					}
				}
			}
			assert.Equal(t, []int{cap, cap, 5}, counts)
			assert.Equal(t, []bool{false, false, true}, finished)
			require.Len(t, ids, 2*cap+5)
			for i, id := range ids {
				assert.Equal(t, int64(i), id)
			}

			//done stays done and leaves the cursor alone
			fillsAtDone := fills
			nextAtDone := 0
			if cursor != nil {
				nextAtDone = cursor.next
			}
			for i := 0; i < 3; i++ {
				batch, res, err := run.Execute()
				require.NoError(t, err)
				assert.Equal(t, Done, res)
				assert.Zero(t, batch.Count)
				assert.True(t, batch.IsEmpty())
			}
			assert.Equal(t, 3, fillsAtDone)
			assert.Equal(t, fillsAtDone, fills)
			if cursor != nil {
				assert.Equal(t, 2*cap+5+1, nextAtDone)
				assert.Equal(t, nextAtDone, cursor.next)
			}
			require.NoError(t, run.Close())
			assert.Equal(t, 0, eng.Storage().Pool.Pins())
		})
	}
}

func TestVectorScanExactMultiple(t *testing.T) {
	eng := NewEngine(testConfig(4))
	makeTable(t, eng, "t", "heap", testCols, testRows(8))
	run := vectorRunner(t, eng, "SELECT id FROM t")
	defer run.Close()

	total := 0
	sawFinished := false
	for {
		batch, res, err := run.Execute()
		require.NoError(t, err)
		if res == Done {
			break
		}
		require.False(t, sawFinished)
		total += batch.Live()
		sawFinished = batch.Finished
	}
	assert.True(t, sawFinished)
	assert.Equal(t, 8, total)
}

func TestVectorScanQualSkip(t *testing.T) {
	eng := NewEngine(testConfig(16))
	makeTable(t, eng, "b", "heap",
		[]util.ColumnConfig{{Name: "x", Type: "int4"}},
		[][]any{{1}, {2}, {nil}, {4}, {5}, {nil}, {7}, {8}})
	run := vectorRunner(t, eng, "SELECT x FROM b WHERE x > 3")
	defer run.Close()

	batch, res, err := run.Execute()
	require.NoError(t, err)
	require.Equal(t, haveMoreOutput, res)
	require.Equal(t, 8, batch.Count)
	assert.True(t, batch.Finished)
	assert.Equal(t, []bool{true, true, true, false, false, true, false, false}, batch.Skip[:8])

	_, res, err = run.Execute()
	require.NoError(t, err)
	assert.Equal(t, Done, res)
}

func TestVectorScanSkipsEmptyBatches(t *testing.T) {
	eng := NewEngine(testConfig(4))
	makeTable(t, eng, "t", "heap", testCols, testRows(20))
	run := vectorRunner(t, eng, "SELECT id FROM t WHERE id >= 17")
	defer run.Close()

	var batches int
	var ids []int64
	for {
		batch, res, err := run.Execute()
		require.NoError(t, err)
		if res == Done {
			break
		}
		batches++
		col, err := batch.Column(0)
		require.NoError(t, err)
		for i := 0; i < batch.Count; i++ {
			if !batch.Skip[i] {
				ids = append(ids, col.Int64(i))
			}
		}
	}
	//rows 0..15 are filtered out in four full batches that are never returned
	assert.Equal(t, 2, batches)
	assert.Equal(t, []int64{17, 18, 19}, ids)
}

func TestVectorScanReScan(t *testing.T) {
	eng := NewEngine(testConfig(4))
	makeTable(t, eng, "t", "heap", testCols, testRows(10))
	run := vectorRunner(t, eng, "SELECT id FROM t")
	defer run.Close()

	drain := func() int {
		n := 0
		for {
			batch, res, err := run.Execute()
			require.NoError(t, err)
			if res == Done {
				return n
			}
			n += batch.Live()
		}
	}
	assert.Equal(t, 10, drain())
	require.NoError(t, run.ReScan())
	assert.Equal(t, 10, drain())
}

func TestBatchPinsReleased(t *testing.T) {
	eng := NewEngine(testConfig(4))
	makeTable(t, eng, "t", "heap", testCols, testRows(10))
	run := vectorRunner(t, eng, "SELECT id, name FROM t")

	batch, _, err := run.Execute()
	require.NoError(t, err)
	assert.Greater(t, batch.Pins(), 0)
	assert.Greater(t, eng.Storage().Pool.Pins(), 0)

	require.NoError(t, run.Close())
	assert.Equal(t, 0, eng.Storage().Pool.Pins())
}

func TestExecScanQual(t *testing.T) {
	eng := NewEngine(testConfig(8))
	types := eng.Types()
	vint4 := types.MustLookup(common.T_vint4)
	int4 := types.MustLookup(oid.T_int4)
	batch := chunk.NewBatch([]*common.TypeInfo{vint4}, 8)
	for _, v := range []any{1, 2, nil, 4, 5, nil, 7, 8} {
		val := common.NullValue(vint4)
		if v != nil {
			val = common.IntValue(vint4, int64(v.(int)))
		}
		batch.AppendRow([]common.Value{val})
	}
	qual := &plan.Expr{
		Typ:     plan.ET_Op,
		DataTyp: common.T_vbool,
		Name:    ">",
		Children: []*plan.Expr{
			{Typ: plan.ET_Var, DataTyp: common.T_vint4, AttNo: 0},
			{Typ: plan.ET_Const, DataTyp: oid.T_int4, Const: common.IntValue(int4, 3)},
		},
	}
	exec := NewExprExec(eng.newEnv(context.Background(), storage.InvalidXid), nil, 8)

	ok, err := exec.ExecScanQual([]*plan.Expr{qual}, batch, false)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []bool{true, true, true, false, false, true, false, false}, batch.Skip)

	//null passes when resultForNull is set
	batch.SetCount(8)
	ok, err = exec.ExecScanQual([]*plan.Expr{qual}, batch, true)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []bool{true, true, false, false, false, false, false, false}, batch.Skip)

	//quals combine as AND
	lt := &plan.Expr{
		Typ:     plan.ET_Op,
		DataTyp: common.T_vbool,
		Name:    "<",
		Children: []*plan.Expr{
			{Typ: plan.ET_Var, DataTyp: common.T_vint4, AttNo: 0},
			{Typ: plan.ET_Const, DataTyp: oid.T_int4, Const: common.IntValue(int4, 0)},
		},
	}
	batch.SetCount(8)
	ok, err = exec.ExecScanQual([]*plan.Expr{qual, lt}, batch, false)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, batch.IsEmpty())
}

func TestVectorAggOutputChunks(t *testing.T) {
	eng := NewEngine(testConfig(4))
	makeTable(t, eng, "t", "heap", testCols, testRows(30))
	run := vectorRunner(t, eng, "SELECT id, count(*) FROM t GROUP BY id")
	defer run.Close()

	var counts []int
	var ids []int64
	for {
		batch, res, err := run.Execute()
		require.NoError(t, err)
		if res == Done {
			break
		}
		counts = append(counts, batch.Count)
		col, err := batch.Column(0)
		require.NoError(t, err)
		for i := 0; i < batch.Count; i++ {
			ids = append(ids, col.Int64(i))
		}
		if batch.Finished {
			break
		}
	}
	assert.Equal(t, []int{4, 4, 4, 4, 4, 4, 4, 2}, counts)
	require.Len(t, ids, 30)
	for i, id := range ids {
		assert.Equal(t, int64(i), id)
	}
	_, res, err := run.Execute()
	require.NoError(t, err)
	assert.Equal(t, Done, res)
}
