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
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/util"
)

func queryStrings(t *testing.T, eng *Engine, sql string) ([]string, *Result) {
	res, err := eng.Query(context.Background(), sql)
	require.NoError(t, err)
	rows, err := res.All()
	require.NoError(t, err)
	ret := make([]string, len(rows))
	for i, row := range rows {
		parts := make([]string, len(row))
		for j, val := range row {
			parts[j] = val.String()
		}
		ret[i] = strings.Join(parts, "|")
	}
	return ret, res
}

var equivalenceQueries = []string{
	"SELECT id, name, score FROM t",
	"SELECT id, score * 2 FROM t WHERE score > 1.5 AND name <> 'n1'",
	"SELECT id FROM t WHERE score < 2 OR id > 40",
	"SELECT id - 1, -id FROM t WHERE NOT (id BETWEEN 5 AND 20)",
	"SELECT name, count(*), count(score), sum(id), avg(score), min(score), max(name) FROM t GROUP BY name",
	"SELECT count(*), sum(score) FROM t WHERE id < 0",
	"SELECT name, sum(id) FROM t GROUP BY name HAVING sum(id) > 100",
	"SELECT id / 4, count(*) FROM t GROUP BY 1",
	"SELECT count(*) FROM t",
	"SELECT id FROM t WHERE id <> 0 AND 10 / id > 1",
}

func TestRowAndVectorAgree(t *testing.T) {
	type mode struct {
		kind         string
		deform       string
		columnStream bool
	}
	modes := []mode{
		{"heap", util.DeformLate, true},
		{"heap", util.DeformEager, true},
		{"temp", util.DeformLate, true},
		{"column", util.DeformLate, true},
		{"column", util.DeformEager, false},
	}
	for _, m := range modes {
		rowEng := NewEngine(testConfig(4))
		rowEng.Config().Vectorize.Enable = false
		vecEng := NewEngine(testConfig(4))
		vecEng.Config().Vectorize.Deform = m.deform
		vecEng.Config().Vectorize.ColumnStream = m.columnStream
		rows := testRows(45)
		makeTable(t, rowEng, "t", m.kind, testCols, rows)
		makeTable(t, vecEng, "t", m.kind, testCols, rows)

		for _, sql := range equivalenceQueries {
			want, res := queryStrings(t, rowEng, sql)
			assert.False(t, res.Vectorized, sql)
			got, res := queryStrings(t, vecEng, sql)
			assert.True(t, res.Vectorized, sql)
			assert.Empty(t, res.Notice, sql)
			assert.Equal(t, want, got, "%s on %s/%s", sql, m.kind, m.deform)
		}
		assert.Equal(t, 0, vecEng.Storage().Pool.Pins())
		assert.Equal(t, 0, rowEng.Storage().Pool.Pins())
	}
}

func TestCountStarEveryStorage(t *testing.T) {
	for _, kind := range []string{"heap", "temp", "column"} {
		for _, stream := range []bool{true, false} {
			rowEng := NewEngine(testConfig(4))
			rowEng.Config().Vectorize.Enable = false
			vecEng := NewEngine(testConfig(4))
			vecEng.Config().Vectorize.ColumnStream = stream
			makeTable(t, rowEng, "t", kind, testCols, testRows(10))
			makeTable(t, vecEng, "t", kind, testCols, testRows(10))

			want, _ := queryStrings(t, rowEng, "SELECT count(*) FROM t")
			got, res := queryStrings(t, vecEng, "SELECT count(*) FROM t")
			assert.True(t, res.Vectorized, kind)
			assert.Equal(t, []string{"10"}, want, kind)
			assert.Equal(t, want, got, kind)
		}
	}
}

func TestLaterQualSkipsRejectedRows(t *testing.T) {
	eng := NewEngine(testConfig(4))
	makeTable(t, eng, "t", "heap", testCols, testRows(10))
	got, res := queryStrings(t, eng, "SELECT id FROM t WHERE id <> 0 AND 10 / id > 1")
	assert.True(t, res.Vectorized)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, got)
}

var dateCols = []util.ColumnConfig{
	{Name: "id", Type: "int4"},
	{Name: "d", Type: "date"},
}

func TestDateIntervalQueries(t *testing.T) {
	start, err := common.ParseDate("1998-08-30")
	require.NoError(t, err)
	rows := make([][]any, 10)
	for i := range rows {
		rows[i] = []any{i, int(start) + i}
	}
	rows[5][1] = nil
	queries := []struct {
		sql  string
		want []string
	}{
		{"SELECT id, d FROM t WHERE d <= date '1998-12-01' - interval '90' day",
			[]string{"0|1998-08-30", "1|1998-08-31", "2|1998-09-01", "3|1998-09-02"}},
		{"SELECT id, d + interval '1 month' FROM t WHERE d > timestamp '1998-09-06 12:00:00'",
			[]string{"8|1998-10-07 00:00:00", "9|1998-10-08 00:00:00"}},
		{"SELECT count(*) FROM t WHERE d - interval '1 day' < d", []string{"9"}},
	}
	for _, kind := range []string{"heap", "column"} {
		rowEng := NewEngine(testConfig(4))
		rowEng.Config().Vectorize.Enable = false
		vecEng := NewEngine(testConfig(4))
		makeTable(t, rowEng, "t", kind, dateCols, rows)
		makeTable(t, vecEng, "t", kind, dateCols, rows)
		for _, q := range queries {
			want, _ := queryStrings(t, rowEng, q.sql)
			assert.Equal(t, q.want, want, "%s on %s", q.sql, kind)
			got, res := queryStrings(t, vecEng, q.sql)
			assert.True(t, res.Vectorized, q.sql)
			assert.Equal(t, want, got, "%s on %s", q.sql, kind)
		}
	}
}

func TestPlainAggOverNoRows(t *testing.T) {
	eng := NewEngine(testConfig(4))
	makeTable(t, eng, "t", "heap", testCols, nil)
	got, res := queryStrings(t, eng, "SELECT count(*), sum(id) FROM t")
	assert.True(t, res.Vectorized)
	require.Len(t, got, 1)
	assert.True(t, strings.HasPrefix(got[0], "0|"))

	got, _ = queryStrings(t, eng, "SELECT name, count(*) FROM t GROUP BY name")
	assert.Empty(t, got)
}

func TestFallback(t *testing.T) {
	eng := NewEngine(testConfig(4))
	makeTable(t, eng, "t", "heap", testCols, testRows(10))

	got, res := queryStrings(t, eng, "SELECT id FROM t ORDER BY id DESC LIMIT 3")
	assert.False(t, res.Vectorized)
	assert.Contains(t, res.Notice, "query can't be vectorized")
	assert.Equal(t, []string{"9", "8", "7"}, got)

	got, res = queryStrings(t, eng, "SELECT upper(name) FROM t WHERE id = 2")
	assert.False(t, res.Vectorized)
	assert.NotEmpty(t, res.Notice)
	assert.Equal(t, []string{"N2"}, got)

	assert.Equal(t, 2.0, testutil.ToFloat64(eng.Metrics().FallbackCounter))
	assert.Equal(t, 2.0, testutil.ToFloat64(eng.Metrics().QueryCounter.WithLabelValues("row")))

	eng.Config().Vectorize.Notice = false
	_, res = queryStrings(t, eng, "SELECT id FROM t ORDER BY id")
	assert.Empty(t, res.Notice)
}

func TestSortNullsAndOffset(t *testing.T) {
	eng := NewEngine(testConfig(4))
	eng.Config().Vectorize.Enable = false
	makeTable(t, eng, "t", "heap", testCols, testRows(10))

	ids := func(sql string) []int64 {
		res, err := eng.Query(context.Background(), sql)
		require.NoError(t, err)
		rows, err := res.All()
		require.NoError(t, err)
		ret := make([]int64, len(rows))
		for i, row := range rows {
			ret[i] = row[0].I64
		}
		return ret
	}
	//rows 4 and 9 have a null score, nulls come first for descending order
	assert.Equal(t, []int64{4, 9, 8}, ids("SELECT id, score FROM t ORDER BY score DESC LIMIT 3"))
	assert.Equal(t, []int64{9, 0}, ids("SELECT id, score AS s FROM t ORDER BY s NULLS FIRST LIMIT 2 OFFSET 1"))
	assert.Equal(t, []int64{8, 7}, ids("SELECT id, score FROM t ORDER BY 2 DESC NULLS LAST LIMIT 2"))
}

func TestRowsOutliveBatches(t *testing.T) {
	eng := NewEngine(testConfig(2))
	makeTable(t, eng, "t", "heap", testCols, testRows(7))
	res, err := eng.Query(context.Background(), "SELECT name, id FROM t")
	require.NoError(t, err)
	rows, err := res.All()
	require.NoError(t, err)
	require.Len(t, rows, 7)
	for i, row := range rows {
		assert.Equal(t, "n"+string(rune('0'+i%3)), row[0].Str)
		assert.Equal(t, int64(i), row[1].I64)
		assert.Equal(t, "text", row[0].Typ.Name)
	}
	assert.Equal(t, 0, eng.Storage().Pool.Pins())
	//closing twice is fine
	assert.NoError(t, res.Close())
}

func TestQueryCanceled(t *testing.T) {
	eng := NewEngine(testConfig(4))
	makeTable(t, eng, "t", "heap", testCols, testRows(10))
	ctx, cancel := context.WithCancel(context.Background())
	res, err := eng.Query(ctx, "SELECT id FROM t")
	require.NoError(t, err)
	defer res.Close()
	cancel()
	_, _, err = res.Next()
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestQueryErrors(t *testing.T) {
	eng := NewEngine(testConfig(4))
	makeTable(t, eng, "t", "heap", testCols, testRows(3))

	_, err := eng.Query(context.Background(), "SELECT id FROM missing")
	assert.Error(t, err)
	_, err = eng.Query(context.Background(), "DELETE FROM t")
	assert.Error(t, err)

	res, err := eng.Query(context.Background(), "SELECT 10 / (id - 1) FROM t")
	require.NoError(t, err)
	_, err = res.All()
	assert.Error(t, err)
	assert.Equal(t, 0, eng.Storage().Pool.Pins())
}

func TestScanFault(t *testing.T) {
	eng := NewEngine(testConfig(4))
	makeTable(t, eng, "t", "heap", testCols, testRows(10))

	boom := errors.New("disk gone")
	util.Open(util.FAULTS_SCOPE_EXEC)
	defer util.Close(util.FAULTS_SCOPE_EXEC)
	util.Register(util.FAULTS_SCOPE_EXEC, "vscan.fill", nil, func([]string) error { return boom })

	res, err := eng.Query(context.Background(), "SELECT id FROM t")
	require.NoError(t, err)
	_, err = res.All()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, eng.Storage().Pool.Pins())

	util.Close(util.FAULTS_SCOPE_EXEC)
	rows, _ := queryStrings(t, eng, "SELECT id FROM t")
	assert.Len(t, rows, 10)
}

func TestExplain(t *testing.T) {
	eng := NewEngine(testConfig(4))
	makeTable(t, eng, "t", "heap", testCols, testRows(3))

	out, err := eng.Explain("SELECT name, count(*) FROM t WHERE id > 0 GROUP BY name")
	require.NoError(t, err)
	assert.Contains(t, out, "Unbatch")
	assert.Contains(t, out, "VectorAgg (hashed)")
	assert.Contains(t, out, "VectorScan on t")

	out, err = eng.Explain("SELECT id FROM t ORDER BY id")
	require.NoError(t, err)
	assert.Contains(t, out, "Sort")
	assert.Contains(t, out, "NOTICE: query can't be vectorized")
}

func TestScanMetrics(t *testing.T) {
	eng := NewEngine(testConfig(4))
	makeTable(t, eng, "t", "heap", testCols, testRows(10))
	got, _ := queryStrings(t, eng, "SELECT id FROM t WHERE id < 6")
	assert.Len(t, got, 6)
	m := eng.Metrics()
	assert.Equal(t, 10.0, testutil.ToFloat64(m.ScannedRows))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.FilteredRows))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Batch("VectorScan")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueryCounter.WithLabelValues("vector")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PinGauge))
}
