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

package plan

import (
	"testing"

	"github.com/huandu/go-clone"
	"github.com/lib/pq/oid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/parser"
	"github.com/daviszhen/vexec/pkg/storage"
	"github.com/daviszhen/vexec/pkg/vtype"
)

type testEnv struct {
	types *common.TypeMap
	ops   *vtype.Registry
	cat   *storage.Catalog
}

func newTestEnv(t *testing.T) *testEnv {
	types := common.NewTypeMap()
	cat := storage.NewCatalog()
	desc := common.NewTupleDesc(
		common.Attribute{Name: "id", Typ: types.MustLookup(oid.T_int4)},
		common.Attribute{Name: "name", Typ: types.MustLookup(oid.T_text)},
		common.Attribute{Name: "score", Typ: types.MustLookup(oid.T_float8)},
	)
	require.NoError(t, cat.Register(storage.NewTempRelation("t", desc)))
	return &testEnv{
		types: types,
		ops:   vtype.NewRegistry(types),
		cat:   cat,
	}
}

func (env *testEnv) build(t *testing.T, sql string) *PlanNode {
	sel, err := parser.ParseSelect(sql)
	require.NoError(t, err)
	root, err := Build(sel, env.cat, env.types, env.ops)
	require.NoError(t, err)
	return root
}

func (env *testEnv) buildErr(sql string) error {
	sel, err := parser.ParseSelect(sql)
	if err != nil {
		return err
	}
	_, err = Build(sel, env.cat, env.types, env.ops)
	return err
}

func attrNames(desc *common.TupleDesc) []string {
	ret := make([]string, 0, desc.Natts())
	for _, attr := range desc.Attrs {
		ret = append(ret, attr.Name)
	}
	return ret
}

func TestBuildScan(t *testing.T) {
	env := newTestEnv(t)
	root := env.build(t, "SELECT id, name AS n FROM t WHERE id > 1 AND score < 2")
	require.Equal(t, PT_SeqScan, root.Typ)
	assert.Equal(t, "t", root.Relation)
	assert.Len(t, root.Targets, 2)
	assert.Len(t, root.Quals, 2)
	assert.Equal(t, []string{"id", "n"}, attrNames(root.Desc))

	root = env.build(t, "SELECT * FROM t")
	assert.Len(t, root.Targets, 3)
	assert.Equal(t, []string{"id", "name", "score"}, attrNames(root.Desc))

	root = env.build(t, "SELECT id FROM t LIMIT 5 OFFSET 2")
	require.Equal(t, PT_Limit, root.Typ)
	assert.Equal(t, int64(5), root.Limit)
	assert.Equal(t, int64(2), root.Offset)
	assert.Equal(t, PT_SeqScan, root.Children[0].Typ)

	root = env.build(t, "SELECT 1 + 2")
	assert.Equal(t, PT_Result, root.Typ)
}

func TestBuildAgg(t *testing.T) {
	env := newTestEnv(t)
	root := env.build(t, "SELECT name, count(*) FROM t GROUP BY name HAVING sum(id) > 3")
	require.Equal(t, PT_Agg, root.Typ)
	assert.Equal(t, AggHashed, root.Strategy)
	require.Len(t, root.Aggs, 2)
	require.Len(t, root.GroupBys, 1)
	require.Len(t, root.Quals, 1)

	scan := root.Children[0]
	require.Equal(t, PT_SeqScan, scan.Typ)
	require.Len(t, scan.Targets, 2)
	assert.Equal(t, 0, scan.Targets[0].AttNo)
	assert.Equal(t, 1, scan.Targets[1].AttNo)
	//group key reads the scan output
	assert.Equal(t, 1, root.GroupBys[0].AttNo)

	require.Len(t, root.Targets, 2)
	assert.Equal(t, ET_Var, root.Targets[0].Typ)
	assert.Equal(t, 0, root.Targets[0].AttNo)
	assert.Equal(t, ET_Aggref, root.Targets[1].Typ)
	assert.Equal(t, 1, root.Targets[1].AttNo)
	assert.Equal(t, oid.T_int8, root.Targets[1].DataTyp)

	root = env.build(t, "SELECT count(*), avg(id) FROM t")
	assert.Equal(t, AggPlain, root.Strategy)
	assert.Equal(t, oid.T_numeric, root.Targets[1].DataTyp)
}

func TestBindIntervalLiterals(t *testing.T) {
	env := newTestEnv(t)
	for _, c := range []struct {
		sql  string
		want common.Interval
	}{
		{"SELECT interval '90' day", common.Interval{Days: 90}},
		{"SELECT interval '3' month", common.Interval{Months: 3}},
		{"SELECT interval '1 year 2 days'", common.Interval{Months: 12, Days: 2}},
		{"SELECT '36 hours'::interval", common.Interval{Micros: 36 * 3600 * 1000000}},
	} {
		root := env.build(t, c.sql)
		require.Len(t, root.Targets, 1, c.sql)
		e := root.Targets[0]
		require.Equal(t, ET_Const, e.Typ, c.sql)
		assert.Equal(t, oid.T_interval, e.DataTyp, c.sql)
		assert.Equal(t, c.want, e.Const.Interval(), c.sql)
	}

	root := env.build(t, "SELECT date '1998-12-01' - interval '90' day")
	e := root.Targets[0]
	require.Equal(t, ET_Op, e.Typ)
	assert.Equal(t, "-", e.Name)
	assert.Equal(t, oid.T_timestamp, e.DataTyp)

	assert.Error(t, env.buildErr("SELECT interval '90 parsecs'"))
	assert.Error(t, env.buildErr("SELECT id + interval '1 day' FROM t"))
}

func TestBuildErrors(t *testing.T) {
	env := newTestEnv(t)
	for _, sql := range []string{
		"SELECT id, count(*) FROM t GROUP BY name",
		"SELECT nope FROM t",
		"SELECT id FROM missing",
		"SELECT id FROM t ORDER BY score",
		"SELECT id FROM t WHERE id",
		"SELECT name + 1 FROM t",
		"SELECT count(count(id)) FROM t",
	} {
		assert.Error(t, env.buildErr(sql), sql)
	}
}

func TestVectorize(t *testing.T) {
	env := newTestEnv(t)
	root := env.build(t, "SELECT name, count(*), sum(id) FROM t WHERE -id < 0 GROUP BY name")
	before := clone.Clone(root).(*PlanNode)

	vec, uerr := Rewrite(root, env.types, env.ops, 64)
	require.Nil(t, uerr)
	assert.Equal(t, before, root)

	require.Equal(t, PT_Unbatch, vec.Typ)
	assert.True(t, vec.Vectorized())
	assert.Equal(t, []string{"name", "count", "sum"}, attrNames(vec.Desc))
	assert.Equal(t, oid.T_text, vec.Desc.Attrs[0].Typ.Id)
	assert.Equal(t, oid.T_int8, vec.Desc.Attrs[1].Typ.Id)

	agg := vec.Children[0]
	require.Equal(t, PT_VectorAgg, agg.Typ)
	assert.Equal(t, 64, agg.BatchSize)
	assert.NotSame(t, root, agg.Wrapped)
	assert.Equal(t, before, agg.Wrapped)
	assert.Equal(t, common.T_vint8, agg.Aggs[0].DataTyp)
	assert.Equal(t, common.T_vtext, agg.GroupBys[0].DataTyp)

	scan := agg.Children[0]
	require.Equal(t, PT_VectorScan, scan.Typ)
	assert.Equal(t, PT_SeqScan, scan.Wrapped.Typ)
	assert.Equal(t, common.T_vint4, scan.Targets[0].DataTyp)
	assert.Equal(t, common.T_vbool, scan.Quals[0].DataTyp)
	//constants stay scalar
	assert.Equal(t, oid.T_int4, scan.Quals[0].Children[1].DataTyp)
}

func TestVectorizeUnsupported(t *testing.T) {
	env := newTestEnv(t)
	for sql, reason := range map[string]string{
		"SELECT id FROM t ORDER BY id":        "Sort",
		"SELECT id FROM t LIMIT 1":            "Limit",
		"SELECT upper(name) FROM t":           "upper",
		"SELECT id FROM t WHERE name ~~ 'a%'": "~~",
		"SELECT 1":                            "Result",
	} {
		root := env.build(t, sql)
		before := clone.Clone(root).(*PlanNode)
		got, uerr := Rewrite(root, env.types, env.ops, 64)
		require.NotNil(t, uerr, sql)
		assert.Contains(t, uerr.Error(), "query can't be vectorized")
		assert.Contains(t, uerr.Reason, reason, sql)
		assert.Same(t, root, got)
		assert.Equal(t, before, root, sql)
	}
}

func TestExplain(t *testing.T) {
	env := newTestEnv(t)
	root := env.build(t, "SELECT name, count(*) FROM t WHERE id > 1 GROUP BY name ORDER BY 2 DESC")
	out := Explain(root, env.types)
	assert.Contains(t, out, "Sort")
	assert.Contains(t, out, "Agg (hashed)")
	assert.Contains(t, out, "SeqScan on t")
	assert.Contains(t, out, "quals")
	assert.Contains(t, out, "#1 desc nulls first")

	vec, uerr := Rewrite(env.build(t, "SELECT id FROM t"), env.types, env.ops, 16)
	require.Nil(t, uerr)
	out = Explain(vec, env.types)
	assert.Contains(t, out, "Unbatch")
	assert.Contains(t, out, "VectorScan on t")
	assert.Contains(t, out, "16")
}
