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
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq/oid"
	pg_query "github.com/pganalyze/pg_query_go/v5"
	"github.com/pkg/errors"

	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/storage"
)

var ErrUnsupportedSQL = errors.New("unsupported sql")

type Catalog interface {
	Lookup(name string) (storage.Relation, error)
}

// OperatorLookup resolves operator, function and aggregate result
// types by argument signature.
type OperatorLookup interface {
	OpResult(name string, args []oid.Oid) (oid.Oid, bool)
	AggResult(name string, arg oid.Oid, star bool, vector bool) (oid.Oid, bool)
}

var aggNames = map[string]bool{
	"count": true,
	"sum":   true,
	"avg":   true,
	"min":   true,
	"max":   true,
}

type Builder struct {
	cat   Catalog
	types *common.TypeMap
	ops   OperatorLookup

	relName string
	alias   string
	relDesc *common.TupleDesc
	aggs    []*Expr
	//group keys over the relation row
	groupKeys []*Expr
	//string literals whose type is decided by the other operand
	unknown map[*Expr]bool
}

func NewBuilder(cat Catalog, types *common.TypeMap, ops OperatorLookup) *Builder {
	return &Builder{
		cat:     cat,
		types:   types,
		ops:     ops,
		unknown: make(map[*Expr]bool),
	}
}

// Build binds sel into a row plan:
//
//	Limit <- Sort <- Agg <- SeqScan
//
// where each node above the scan is present only when needed.
func Build(sel *pg_query.SelectStmt, cat Catalog, types *common.TypeMap, ops OperatorLookup) (*PlanNode, error) {
	return NewBuilder(cat, types, ops).Build(sel)
}

func (b *Builder) Build(sel *pg_query.SelectStmt) (*PlanNode, error) {
	if len(sel.GetDistinctClause()) != 0 {
		return nil, errors.Wrap(ErrUnsupportedSQL, "DISTINCT")
	}
	if len(sel.GetWindowClause()) != 0 {
		return nil, errors.Wrap(ErrUnsupportedSQL, "WINDOW")
	}
	if len(sel.GetLockingClause()) != 0 {
		return nil, errors.Wrap(ErrUnsupportedSQL, "locking clause")
	}
	if sel.GetIntoClause() != nil {
		return nil, errors.Wrap(ErrUnsupportedSQL, "SELECT INTO")
	}
	if err := b.buildFrom(sel.GetFromClause()); err != nil {
		return nil, err
	}

	var quals []*Expr
	if where := sel.GetWhereClause(); where != nil {
		qual, err := b.bindExpr(where, false)
		if err != nil {
			return nil, err
		}
		if err = b.checkBool(qual, "WHERE"); err != nil {
			return nil, err
		}
		quals = splitAnd(qual, nil)
	}

	targets, err := b.bindTargets(sel.GetTargetList())
	if err != nil {
		return nil, err
	}

	groupBys := make([]*Expr, 0)
	for _, node := range sel.GetGroupClause() {
		gb, err := b.bindGroupBy(node, targets)
		if err != nil {
			return nil, err
		}
		groupBys = append(groupBys, gb)
	}

	var having *Expr
	if hv := sel.GetHavingClause(); hv != nil {
		having, err = b.bindExpr(hv, true)
		if err != nil {
			return nil, err
		}
		if err = b.checkBool(having, "HAVING"); err != nil {
			return nil, err
		}
	}

	var root *PlanNode
	if b.relDesc == nil {
		if len(b.aggs) != 0 || len(groupBys) != 0 {
			return nil, errors.Wrap(ErrUnsupportedSQL, "aggregation without FROM")
		}
		root = &PlanNode{
			Typ:     PT_Result,
			Targets: targets,
			Quals:   quals,
			Limit:   NoLimit,
		}
	} else if len(b.aggs) != 0 || len(groupBys) != 0 || having != nil {
		root, err = b.buildAgg(targets, quals, groupBys, having)
		if err != nil {
			return nil, err
		}
	} else {
		root = &PlanNode{
			Typ:      PT_SeqScan,
			Relation: b.relName,
			Targets:  targets,
			Quals:    quals,
			Limit:    NoLimit,
		}
	}
	root.Desc = b.targetDesc(root.Targets)

	if sorts := sel.GetSortClause(); len(sorts) != 0 {
		keys, err := b.bindSortKeys(sorts, root)
		if err != nil {
			return nil, err
		}
		root = &PlanNode{
			Typ:      PT_Sort,
			Desc:     root.Desc.Copy(),
			SortKeys: keys,
			Limit:    NoLimit,
			Children: []*PlanNode{root},
		}
	}

	if sel.GetLimitCount() != nil || sel.GetLimitOffset() != nil {
		if sel.GetLimitOption() == pg_query.LimitOption_LIMIT_OPTION_WITH_TIES {
			return nil, errors.Wrap(ErrUnsupportedSQL, "WITH TIES")
		}
		limit, err := b.bindLimit(sel.GetLimitCount(), NoLimit)
		if err != nil {
			return nil, err
		}
		offset, err := b.bindLimit(sel.GetLimitOffset(), 0)
		if err != nil {
			return nil, err
		}
		root = &PlanNode{
			Typ:      PT_Limit,
			Desc:     root.Desc.Copy(),
			Limit:    limit,
			Offset:   offset,
			Children: []*PlanNode{root},
		}
	}
	return root, nil
}

func (b *Builder) buildFrom(from []*pg_query.Node) error {
	if len(from) == 0 {
		return nil
	}
	if len(from) > 1 {
		return errors.Wrap(ErrUnsupportedSQL, "joins")
	}
	rv := from[0].GetRangeVar()
	if rv == nil {
		return errors.Wrapf(ErrUnsupportedSQL, "FROM item %T", from[0].GetNode())
	}
	rel, err := b.cat.Lookup(rv.GetRelname())
	if err != nil {
		return err
	}
	b.relName = rel.Name()
	b.relDesc = rel.Desc()
	b.alias = rv.GetRelname()
	if rv.GetAlias() != nil {
		b.alias = rv.GetAlias().GetAliasname()
	}
	return nil
}

func (b *Builder) bindTargets(list []*pg_query.Node) ([]*Expr, error) {
	targets := make([]*Expr, 0, len(list))
	for _, node := range list {
		res := node.GetResTarget()
		if res == nil {
			return nil, errors.Wrapf(ErrUnsupportedSQL, "target %T", node.GetNode())
		}
		if ref := res.GetVal().GetColumnRef(); ref != nil && isStar(ref) {
			if b.relDesc == nil {
				return nil, errors.New("SELECT * with no tables specified is not valid")
			}
			for i, attr := range b.relDesc.Attrs {
				targets = append(targets, &Expr{
					Typ:     ET_Var,
					DataTyp: attr.Typ.Id,
					Name:    attr.Name,
					AttNo:   i,
				})
			}
			continue
		}
		e, err := b.bindExpr(res.GetVal(), true)
		if err != nil {
			return nil, err
		}
		e.Alias = res.GetName()
		targets = append(targets, e)
	}
	return targets, nil
}

func isStar(ref *pg_query.ColumnRef) bool {
	fields := ref.GetFields()
	return len(fields) != 0 && fields[len(fields)-1].GetAStar() != nil
}

// bindGroupBy accepts an expression over the relation or an ordinal
// of the select list.
func (b *Builder) bindGroupBy(node *pg_query.Node, targets []*Expr) (*Expr, error) {
	if ival := node.GetAConst().GetIval(); ival != nil && !node.GetAConst().GetIsnull() {
		pos := int(ival.GetIval())
		if pos < 1 || pos > len(targets) {
			return nil, errors.Errorf("GROUP BY position %d is not in select list", pos)
		}
		gb := targets[pos-1]
		if hasAgg(gb) {
			return nil, errors.New("aggregate functions are not allowed in GROUP BY")
		}
		ret := *gb
		ret.Alias = ""
		return &ret, nil
	}
	if ref := node.GetColumnRef(); ref != nil && len(ref.GetFields()) == 1 {
		name := ref.GetFields()[0].GetString_().GetSval()
		if b.relDesc != nil && b.relDesc.Index(name) < 0 {
			for _, target := range targets {
				if target.Alias == name && !hasAgg(target) {
					ret := *target
					ret.Alias = ""
					return &ret, nil
				}
			}
		}
	}
	return b.bindExpr(node, false)
}

// buildAgg puts an Agg over a scan that outputs only the columns the
// aggregation reads.
func (b *Builder) buildAgg(targets, quals, groupBys []*Expr, having *Expr) (*PlanNode, error) {
	ngroup := len(groupBys)
	for _, agg := range b.aggs {
		agg.AttNo = ngroup + agg.AggNo
	}
	toAggRow := func(e *Expr) (*Expr, error) {
		return b.aggRowExpr(e, groupBys)
	}
	aggTargets := make([]*Expr, len(targets))
	for i, target := range targets {
		e, err := toAggRow(target)
		if err != nil {
			return nil, err
		}
		e.Alias = target.Alias
		aggTargets[i] = e
	}
	var aggQuals []*Expr
	if having != nil {
		e, err := toAggRow(having)
		if err != nil {
			return nil, err
		}
		aggQuals = splitAnd(e, nil)
	}

	b.groupKeys = copyExprs(groupBys)

	//scan output: referenced columns in attno order
	used := make(map[int]bool)
	collect := func(e *Expr) error {
		if e.Typ == ET_Var {
			used[e.AttNo] = true
		}
		return nil
	}
	for _, e := range groupBys {
		_ = e.Walk(collect)
	}
	for _, agg := range b.aggs {
		_ = agg.Walk(collect)
	}
	scanTargets := make([]*Expr, 0, len(used))
	remap := make(map[int]int)
	for i, attr := range b.relDesc.Attrs {
		if !used[i] {
			continue
		}
		remap[i] = len(scanTargets)
		scanTargets = append(scanTargets, &Expr{
			Typ:     ET_Var,
			DataTyp: attr.Typ.Id,
			Name:    attr.Name,
			AttNo:   i,
		})
	}
	rebase := func(e *Expr) error {
		if e.Typ == ET_Var {
			e.AttNo = remap[e.AttNo]
		}
		return nil
	}
	for _, e := range groupBys {
		_ = e.Walk(rebase)
	}
	for _, agg := range b.aggs {
		for _, arg := range agg.Children {
			_ = arg.Walk(rebase)
		}
	}

	scan := &PlanNode{
		Typ:      PT_SeqScan,
		Relation: b.relName,
		Targets:  scanTargets,
		Quals:    quals,
		Limit:    NoLimit,
	}
	scan.Desc = b.targetDesc(scanTargets)

	strategy := AggPlain
	if ngroup != 0 {
		strategy = AggHashed
	}
	return &PlanNode{
		Typ:      PT_Agg,
		Targets:  aggTargets,
		Quals:    aggQuals,
		Aggs:     b.aggs,
		GroupBys: groupBys,
		Strategy: strategy,
		Limit:    NoLimit,
		Children: []*PlanNode{scan},
	}, nil
}

// aggRowExpr rewrites e, bound over the relation, to read the
// aggregation output: group keys first, aggregate results after.
func (b *Builder) aggRowExpr(e *Expr, groupBys []*Expr) (*Expr, error) {
	key := e.String()
	for i, gb := range groupBys {
		if gb.DataTyp == e.DataTyp && gb.String() == key {
			return &Expr{
				Typ:     ET_Var,
				DataTyp: e.DataTyp,
				Name:    gb.OutputName(),
				AttNo:   i,
			}, nil
		}
	}
	switch e.Typ {
	case ET_Var:
		return nil, errors.Errorf("column %q must appear in the GROUP BY clause or be used in an aggregate function", e.Name)
	case ET_Const:
		return e.copy(), nil
	case ET_Aggref:
		ret := e.copy()
		ret.AttNo = len(groupBys) + e.AggNo
		return ret, nil
	}
	ret := e.copy()
	ret.Alias = ""
	for _, child := range e.Children {
		c, err := b.aggRowExpr(child, groupBys)
		if err != nil {
			return nil, err
		}
		ret.Children = append(ret.Children, c)
	}
	return ret, nil
}

func (b *Builder) bindSortKeys(sorts []*pg_query.Node, node *PlanNode) ([]SortKey, error) {
	keys := make([]SortKey, 0, len(sorts))
	for _, n := range sorts {
		sb := n.GetSortBy()
		if sb == nil {
			return nil, errors.Wrapf(ErrUnsupportedSQL, "sort item %T", n.GetNode())
		}
		col, err := b.resolveSortColumn(sb.GetNode(), node)
		if err != nil {
			return nil, err
		}
		key := SortKey{Col: col}
		switch sb.GetSortbyDir() {
		case pg_query.SortByDir_SORTBY_DEFAULT, pg_query.SortByDir_SORTBY_ASC:
		case pg_query.SortByDir_SORTBY_DESC:
			key.Desc = true
		default:
			return nil, errors.Wrapf(ErrUnsupportedSQL, "sort direction %v", sb.GetSortbyDir())
		}
		//nulls sort as larger than any value
		switch sb.GetSortbyNulls() {
		case pg_query.SortByNulls_SORTBY_NULLS_FIRST:
			key.NullsFirst = true
		case pg_query.SortByNulls_SORTBY_NULLS_LAST:
		default:
			key.NullsFirst = key.Desc
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// resolveSortColumn maps an ORDER BY item to a select list position:
// an ordinal, an output name, or an expression equal to a target.
func (b *Builder) resolveSortColumn(n *pg_query.Node, node *PlanNode) (int, error) {
	targets := node.Targets
	if ac := n.GetAConst(); ac != nil && ac.GetIval() != nil && !ac.GetIsnull() {
		pos := int(ac.GetIval().GetIval())
		if pos < 1 || pos > len(targets) {
			return 0, errors.Errorf("ORDER BY position %d is not in select list", pos)
		}
		return pos - 1, nil
	}
	if ref := n.GetColumnRef(); ref != nil && len(ref.GetFields()) == 1 && !isStar(ref) {
		name := ref.GetFields()[0].GetString_().GetSval()
		for i, target := range targets {
			if target.Alias == name {
				return i, nil
			}
		}
	}
	e, err := b.bindExpr(n, node.Typ == PT_Agg)
	if err != nil {
		return 0, err
	}
	if node.Typ == PT_Agg {
		e, err = b.aggRowExpr(e, b.groupKeys)
		if err != nil {
			return 0, err
		}
	}
	key := e.String()
	for i, target := range targets {
		if target.DataTyp == e.DataTyp && target.String() == key {
			return i, nil
		}
	}
	return 0, errors.Wrapf(ErrUnsupportedSQL, "ORDER BY expression %s must appear in select list", key)
}

func (b *Builder) bindLimit(n *pg_query.Node, def int64) (int64, error) {
	if n == nil {
		return def, nil
	}
	ac := n.GetAConst()
	if ac == nil {
		return 0, errors.Wrap(ErrUnsupportedSQL, "LIMIT must be a constant")
	}
	if ac.GetIsnull() {
		return def, nil
	}
	var v int64
	switch {
	case ac.GetIval() != nil:
		v = int64(ac.GetIval().GetIval())
	case ac.GetFval() != nil:
		var err error
		v, err = strconv.ParseInt(ac.GetFval().GetFval(), 10, 64)
		if err != nil {
			return 0, errors.Wrap(ErrUnsupportedSQL, "LIMIT must be an integer")
		}
	default:
		return 0, errors.Wrap(ErrUnsupportedSQL, "LIMIT must be an integer")
	}
	if v < 0 {
		return 0, errors.New("LIMIT must not be negative")
	}
	return v, nil
}

func (b *Builder) targetDesc(targets []*Expr) *common.TupleDesc {
	if targets == nil {
		return b.relDesc.Copy()
	}
	attrs := make([]common.Attribute, len(targets))
	for i, target := range targets {
		attrs[i] = common.Attribute{
			Name: target.OutputName(),
			Typ:  b.types.MustLookup(target.DataTyp),
		}
	}
	return common.NewTupleDesc(attrs...)
}

func (b *Builder) checkBool(e *Expr, clause string) error {
	if e.DataTyp != oid.T_bool {
		return errors.Errorf("argument of %s must be type boolean, not type %s", clause, b.typeName(e.DataTyp))
	}
	return nil
}

func (b *Builder) typeName(id oid.Oid) string {
	if typ, ok := b.types.Lookup(id); ok {
		return typ.Name
	}
	return fmt.Sprintf("%d", id)
}

func splitAnd(e *Expr, quals []*Expr) []*Expr {
	if e.Typ == ET_Bool && e.BoolOp == BO_And {
		for _, child := range e.Children {
			quals = splitAnd(child, quals)
		}
		return quals
	}
	return append(quals, e)
}

func hasAgg(e *Expr) bool {
	found := false
	_ = e.Walk(func(x *Expr) error {
		if x.Typ == ET_Aggref {
			found = true
		}
		return nil
	})
	return found
}

func (b *Builder) bindExpr(node *pg_query.Node, allowAgg bool) (*Expr, error) {
	switch realExpr := node.GetNode().(type) {
	case *pg_query.Node_ColumnRef:
		return b.bindColumnRef(realExpr.ColumnRef)
	case *pg_query.Node_AConst:
		return b.bindAConst(realExpr.AConst)
	case *pg_query.Node_TypeCast:
		return b.bindTypeCast(realExpr.TypeCast, allowAgg)
	case *pg_query.Node_AExpr:
		return b.bindAExpr(realExpr.AExpr, allowAgg)
	case *pg_query.Node_BoolExpr:
		return b.bindBoolExpr(realExpr.BoolExpr, allowAgg)
	case *pg_query.Node_FuncCall:
		return b.bindFuncCall(realExpr.FuncCall, allowAgg)
	default:
		return nil, errors.Wrapf(ErrUnsupportedSQL, "expression %T", realExpr)
	}
}

func (b *Builder) bindColumnRef(ref *pg_query.ColumnRef) (*Expr, error) {
	if isStar(ref) {
		return nil, errors.Wrap(ErrUnsupportedSQL, "* in expression")
	}
	fields := ref.GetFields()
	var table, name string
	switch len(fields) {
	case 1:
		name = fields[0].GetString_().GetSval()
	case 2:
		table = fields[0].GetString_().GetSval()
		name = fields[1].GetString_().GetSval()
	default:
		return nil, errors.Wrapf(ErrUnsupportedSQL, "column reference with %d parts", len(fields))
	}
	if b.relDesc == nil {
		return nil, errors.Errorf("column %q does not exist", name)
	}
	if table != "" && table != b.alias {
		return nil, errors.Errorf("missing FROM-clause entry for table %q", table)
	}
	idx := b.relDesc.Index(name)
	if idx < 0 {
		return nil, errors.Errorf("column %q does not exist", name)
	}
	return &Expr{
		Typ:     ET_Var,
		DataTyp: b.relDesc.Attrs[idx].Typ.Id,
		Name:    name,
		AttNo:   idx,
	}, nil
}

func (b *Builder) constExpr(val common.Value) *Expr {
	return &Expr{
		Typ:     ET_Const,
		DataTyp: val.Typ.Id,
		Const:   val,
	}
}

func (b *Builder) bindAConst(ac *pg_query.A_Const) (*Expr, error) {
	if ac.GetIsnull() {
		ret := b.constExpr(common.NullValue(b.types.MustLookup(oid.T_text)))
		b.unknown[ret] = true
		return ret, nil
	}
	switch val := ac.GetVal().(type) {
	case *pg_query.A_Const_Ival:
		return b.constExpr(common.IntValue(b.types.MustLookup(oid.T_int4), int64(val.Ival.GetIval()))), nil
	case *pg_query.A_Const_Fval:
		s := val.Fval.GetFval()
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return b.constExpr(common.IntValue(b.types.MustLookup(oid.T_int8), i)), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid number %q", s)
		}
		return b.constExpr(common.FloatValue(b.types.MustLookup(oid.T_float8), f)), nil
	case *pg_query.A_Const_Boolval:
		return b.constExpr(common.BoolValue(b.types.MustLookup(oid.T_bool), val.Boolval.GetBoolval())), nil
	case *pg_query.A_Const_Sval:
		ret := b.constExpr(common.StringValue(b.types.MustLookup(oid.T_text), val.Sval.GetSval()))
		b.unknown[ret] = true
		return ret, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedSQL, "constant %T", val)
	}
}

var typeAliases = map[string]string{
	"integer":          "int4",
	"int":              "int4",
	"smallint":         "int2",
	"bigint":           "int8",
	"real":             "float4",
	"double precision": "float8",
	"boolean":          "bool",
	"character":        "bpchar",
	"char":             "bpchar",
	"decimal":          "numeric",
}

func (b *Builder) lookupTypeName(tn *pg_query.TypeName) (*common.TypeInfo, error) {
	names := tn.GetNames()
	if len(names) == 0 {
		return nil, errors.New("empty type name")
	}
	name := strings.ToLower(names[len(names)-1].GetString_().GetSval())
	if alias, ok := typeAliases[name]; ok {
		name = alias
	}
	typ, ok := b.types.LookupName(name)
	if !ok || typ.Vector {
		return nil, errors.Wrapf(common.ErrTypeNotFound, "type %q", name)
	}
	return typ, nil
}

// bindTypeCast folds casts of constants. Casts of columns are not
// supported.
func (b *Builder) bindTypeCast(tc *pg_query.TypeCast, allowAgg bool) (*Expr, error) {
	arg, err := b.bindExpr(tc.GetArg(), allowAgg)
	if err != nil {
		return nil, err
	}
	typ, err := b.lookupTypeName(tc.GetTypeName())
	if err != nil {
		return nil, err
	}
	if arg.DataTyp == typ.Id {
		delete(b.unknown, arg)
		return arg, nil
	}
	if arg.Typ != ET_Const {
		return nil, errors.Wrapf(ErrUnsupportedSQL, "cast of %s to %s", arg, typ.Name)
	}
	if typ.Kind == common.KindInterval && !arg.Const.IsNull {
		if unit := intervalFieldUnit(tc.GetTypeName().GetTypmods()); unit != "" {
			text := strings.TrimSpace(arg.Const.String())
			if _, err := strconv.ParseFloat(text, 64); err == nil {
				arg = b.constExpr(common.StringValue(arg.Const.Typ, text+" "+unit))
			}
		}
	}
	return b.coerceConst(arg, typ)
}

// interval field masks of the parser, e.g. interval '90' day.
var intervalFields = []struct {
	mask int32
	unit string
}{
	{1 << 12, "second"},
	{1 << 11, "minute"},
	{1 << 10, "hour"},
	{1 << 3, "day"},
	{1 << 1, "month"},
	{1 << 2, "year"},
}

// intervalFieldUnit is the unit a bare number takes under the field
// qualifier: the least significant field named.
func intervalFieldUnit(typmods []*pg_query.Node) string {
	if len(typmods) == 0 {
		return ""
	}
	ac := typmods[0].GetAConst()
	if ac == nil || ac.GetIval() == nil {
		return ""
	}
	mask := ac.GetIval().GetIval()
	for _, field := range intervalFields {
		if mask&field.mask != 0 {
			return field.unit
		}
	}
	return ""
}

func (b *Builder) coerceConst(arg *Expr, typ *common.TypeInfo) (*Expr, error) {
	if arg.Const.IsNull {
		return b.constExpr(common.NullValue(typ)), nil
	}
	val, err := common.ParseValue(typ, arg.Const.String())
	if err != nil {
		return nil, errors.Wrapf(err, "invalid input for type %s", typ.Name)
	}
	return b.constExpr(val), nil
}

// resolveUnknown gives an untyped string literal the type of the
// other operand.
func (b *Builder) resolveUnknown(e *Expr, other *Expr) (*Expr, error) {
	if !b.unknown[e] || b.unknown[other] {
		return e, nil
	}
	typ := b.types.MustLookup(other.DataTyp)
	if typ.Kind == common.KindString && !e.Const.IsNull {
		return e, nil
	}
	return b.coerceConst(e, typ)
}

func (b *Builder) bindOp(name string, args []*Expr) (*Expr, error) {
	argTyps := make([]oid.Oid, len(args))
	for i, arg := range args {
		argTyps[i] = arg.DataTyp
	}
	res, ok := b.ops.OpResult(name, argTyps)
	if !ok {
		names := make([]string, len(argTyps))
		for i, id := range argTyps {
			names[i] = b.typeName(id)
		}
		return nil, errors.Errorf("operator does not exist: %s(%s)", name, strings.Join(names, ", "))
	}
	return &Expr{
		Typ:      ET_Op,
		DataTyp:  res,
		Name:     name,
		Children: args,
	}, nil
}

func (b *Builder) bindAExpr(expr *pg_query.A_Expr, allowAgg bool) (*Expr, error) {
	switch expr.GetKind() {
	case pg_query.A_Expr_Kind_AEXPR_OP, pg_query.A_Expr_Kind_AEXPR_LIKE:
	case pg_query.A_Expr_Kind_AEXPR_BETWEEN, pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN:
		return b.bindBetween(expr, allowAgg)
	default:
		return nil, errors.Wrapf(ErrUnsupportedSQL, "expression kind %v", expr.GetKind())
	}
	if len(expr.GetName()) != 1 {
		return nil, errors.Wrap(ErrUnsupportedSQL, "qualified operator")
	}
	opName := expr.GetName()[0].GetString_().GetSval()
	right, err := b.bindExpr(expr.GetRexpr(), allowAgg)
	if err != nil {
		return nil, err
	}
	if expr.GetLexpr() == nil {
		//prefix operator
		if opName == "-" && right.Typ == ET_Const && !right.Const.IsNull {
			switch right.Const.Typ.Kind {
			case common.KindInt:
				right.Const.I64 = -right.Const.I64
				return right, nil
			case common.KindFloat:
				right.Const.F64 = -right.Const.F64
				return right, nil
			}
		}
		return b.bindOp(opName, []*Expr{right})
	}
	left, err := b.bindExpr(expr.GetLexpr(), allowAgg)
	if err != nil {
		return nil, err
	}
	if left, err = b.resolveUnknown(left, right); err != nil {
		return nil, err
	}
	if right, err = b.resolveUnknown(right, left); err != nil {
		return nil, err
	}
	return b.bindOp(opName, []*Expr{left, right})
}

// bindBetween expands x BETWEEN lo AND hi into x >= lo AND x <= hi.
func (b *Builder) bindBetween(expr *pg_query.A_Expr, allowAgg bool) (*Expr, error) {
	bounds := expr.GetRexpr().GetList().GetItems()
	if len(bounds) != 2 {
		return nil, errors.Wrap(ErrUnsupportedSQL, "BETWEEN bounds")
	}
	cmps := make([]*Expr, 2)
	for i, op := range []string{">=", "<="} {
		x, err := b.bindExpr(expr.GetLexpr(), allowAgg)
		if err != nil {
			return nil, err
		}
		bound, err := b.bindExpr(bounds[i], allowAgg)
		if err != nil {
			return nil, err
		}
		if bound, err = b.resolveUnknown(bound, x); err != nil {
			return nil, err
		}
		if cmps[i], err = b.bindOp(op, []*Expr{x, bound}); err != nil {
			return nil, err
		}
	}
	ret := &Expr{
		Typ:      ET_Bool,
		DataTyp:  oid.T_bool,
		BoolOp:   BO_And,
		Children: cmps,
	}
	if expr.GetKind() == pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN {
		ret = &Expr{
			Typ:      ET_Bool,
			DataTyp:  oid.T_bool,
			BoolOp:   BO_Not,
			Children: []*Expr{ret},
		}
	}
	return ret, nil
}

func (b *Builder) bindBoolExpr(expr *pg_query.BoolExpr, allowAgg bool) (*Expr, error) {
	var op BoolOpType
	switch expr.GetBoolop() {
	case pg_query.BoolExprType_AND_EXPR:
		op = BO_And
	case pg_query.BoolExprType_OR_EXPR:
		op = BO_Or
	case pg_query.BoolExprType_NOT_EXPR:
		op = BO_Not
	default:
		return nil, errors.Wrapf(ErrUnsupportedSQL, "bool expr %v", expr.GetBoolop())
	}
	ret := &Expr{
		Typ:     ET_Bool,
		DataTyp: oid.T_bool,
		BoolOp:  op,
	}
	for _, arg := range expr.GetArgs() {
		child, err := b.bindExpr(arg, allowAgg)
		if err != nil {
			return nil, err
		}
		if b.unknown[child] {
			if child, err = b.coerceConst(child, b.types.MustLookup(oid.T_bool)); err != nil {
				return nil, err
			}
		}
		if err = b.checkBool(child, strings.ToUpper(op.String())); err != nil {
			return nil, err
		}
		ret.Children = append(ret.Children, child)
	}
	return ret, nil
}

func funcName(fc *pg_query.FuncCall) string {
	for _, node := range fc.GetFuncname() {
		sval := node.GetString_().GetSval()
		if sval == "pg_catalog" {
			continue
		}
		return strings.ToLower(sval)
	}
	return ""
}

func (b *Builder) bindFuncCall(fc *pg_query.FuncCall, allowAgg bool) (*Expr, error) {
	name := funcName(fc)
	if fc.GetOver() != nil {
		return nil, errors.Wrap(ErrUnsupportedSQL, "window functions")
	}
	if aggNames[name] {
		return b.bindAggref(name, fc, allowAgg)
	}
	if fc.GetAggStar() || fc.GetAggDistinct() {
		return nil, errors.Errorf("%s is not an aggregate function", name)
	}
	args := make([]*Expr, 0, len(fc.GetArgs()))
	for _, arg := range fc.GetArgs() {
		child, err := b.bindExpr(arg, allowAgg)
		if err != nil {
			return nil, err
		}
		args = append(args, child)
	}
	return b.bindOp(name, args)
}

func (b *Builder) bindAggref(name string, fc *pg_query.FuncCall, allowAgg bool) (*Expr, error) {
	if !allowAgg {
		return nil, errors.New("aggregate functions are not allowed here")
	}
	if fc.GetAggDistinct() || fc.GetAggFilter() != nil || len(fc.GetAggOrder()) != 0 {
		return nil, errors.Wrap(ErrUnsupportedSQL, "DISTINCT, FILTER or ORDER BY in aggregate")
	}
	agg := &Expr{
		Typ:     ET_Aggref,
		Name:    name,
		AggStar: fc.GetAggStar(),
		AggNo:   len(b.aggs),
	}
	var argTyp oid.Oid
	if !agg.AggStar {
		if len(fc.GetArgs()) != 1 {
			return nil, errors.Errorf("%s takes exactly one argument", name)
		}
		//nested aggregates are rejected here
		arg, err := b.bindExpr(fc.GetArgs()[0], false)
		if err != nil {
			return nil, err
		}
		agg.Children = []*Expr{arg}
		argTyp = arg.DataTyp
	}
	res, ok := b.ops.AggResult(name, argTyp, agg.AggStar, false)
	if !ok {
		return nil, errors.Errorf("function %s(%s) does not exist", name, b.typeName(argTyp))
	}
	agg.DataTyp = res
	for _, prev := range b.aggs {
		if prev.DataTyp == agg.DataTyp && prev.String() == agg.String() {
			return b.aggPlaceholder(prev), nil
		}
	}
	b.aggs = append(b.aggs, agg)
	return b.aggPlaceholder(agg), nil
}

// aggPlaceholder is the reference to agg inside a target or HAVING.
func (b *Builder) aggPlaceholder(agg *Expr) *Expr {
	return &Expr{
		Typ:     ET_Aggref,
		DataTyp: agg.DataTyp,
		Name:    agg.Name,
		AggStar: agg.AggStar,
		AggNo:   agg.AggNo,
	}
}
