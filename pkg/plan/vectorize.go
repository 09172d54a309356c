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

	"github.com/huandu/go-clone"
	"github.com/lib/pq/oid"
	"go.uber.org/zap"

	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/util"
)

// UnsupportedError is why a plan stays on the row engine.
type UnsupportedError struct {
	Reason string
}

func (e *UnsupportedError) Error() string {
	return "query can't be vectorized: " + e.Reason
}

func unsupported(format string, args ...any) *UnsupportedError {
	return &UnsupportedError{Reason: fmt.Sprintf(format, args...)}
}

type vectorizer struct {
	types     *common.TypeMap
	ops       OperatorLookup
	batchSize int
}

// Vectorize returns a vectorized copy of root. root is never modified.
func Vectorize(root *PlanNode, types *common.TypeMap, ops OperatorLookup, batchSize int) (*PlanNode, *UnsupportedError) {
	v := &vectorizer{
		types:     types,
		ops:       ops,
		batchSize: batchSize,
	}
	copied := clone.Clone(root).(*PlanNode)
	return v.node(copied)
}

// Rewrite vectorizes root and puts an Unbatch on top. On failure it
// returns root itself with the reason.
func Rewrite(root *PlanNode, types *common.TypeMap, ops OperatorLookup, batchSize int) (*PlanNode, *UnsupportedError) {
	vec, uerr := Vectorize(root, types, ops, batchSize)
	if uerr != nil {
		util.Info("query can't be vectorized", zap.String("detail", uerr.Reason))
		return root, uerr
	}
	desc, err := vec.Desc.Scalarize(types)
	if err != nil {
		return root, unsupported("%v", err)
	}
	return &PlanNode{
		Typ:      PT_Unbatch,
		Desc:     desc,
		Limit:    NoLimit,
		Children: []*PlanNode{vec},
	}, nil
}

func (v *vectorizer) node(n *PlanNode) (*PlanNode, *UnsupportedError) {
	switch n.Typ {
	case PT_SeqScan:
		return v.scan(n)
	case PT_Agg:
		return v.agg(n)
	default:
		return nil, unsupported("node type %s not supported", n.Typ)
	}
}

func (v *vectorizer) scan(n *PlanNode) (*PlanNode, *UnsupportedError) {
	ret := &PlanNode{
		Typ:       PT_VectorScan,
		Relation:  n.Relation,
		Limit:     NoLimit,
		BatchSize: v.batchSize,
		Wrapped:   n,
	}
	var uerr *UnsupportedError
	if ret.Targets, uerr = v.exprs(n.Targets); uerr != nil {
		return nil, uerr
	}
	if ret.Quals, uerr = v.exprs(n.Quals); uerr != nil {
		return nil, uerr
	}
	if ret.Desc, uerr = v.desc(n.Desc); uerr != nil {
		return nil, uerr
	}
	return ret, nil
}

func (v *vectorizer) agg(n *PlanNode) (*PlanNode, *UnsupportedError) {
	switch n.Strategy {
	case AggPlain, AggHashed:
	default:
		return nil, unsupported("%s aggregation not supported", n.Strategy)
	}
	if len(n.Children) != 1 {
		return nil, unsupported("aggregation with %d children", len(n.Children))
	}
	child, uerr := v.node(n.Children[0])
	if uerr != nil {
		return nil, uerr
	}
	ret := &PlanNode{
		Typ:       PT_VectorAgg,
		Strategy:  n.Strategy,
		Limit:     NoLimit,
		BatchSize: v.batchSize,
		Children:  []*PlanNode{child},
		Wrapped:   n,
	}
	if ret.Aggs, uerr = v.exprs(n.Aggs); uerr != nil {
		return nil, uerr
	}
	if ret.GroupBys, uerr = v.exprs(n.GroupBys); uerr != nil {
		return nil, uerr
	}
	if ret.Targets, uerr = v.exprs(n.Targets); uerr != nil {
		return nil, uerr
	}
	if ret.Quals, uerr = v.exprs(n.Quals); uerr != nil {
		return nil, uerr
	}
	if ret.Desc, uerr = v.desc(n.Desc); uerr != nil {
		return nil, uerr
	}
	return ret, nil
}

func (v *vectorizer) desc(desc *common.TupleDesc) (*common.TupleDesc, *UnsupportedError) {
	ret, err := desc.Vectorize(v.types)
	if err != nil {
		return nil, unsupported("%v", err)
	}
	return ret, nil
}

func (v *vectorizer) exprs(exprs []*Expr) ([]*Expr, *UnsupportedError) {
	if exprs == nil {
		return nil, nil
	}
	ret := make([]*Expr, len(exprs))
	for i, e := range exprs {
		var uerr *UnsupportedError
		if ret[i], uerr = v.expr(e); uerr != nil {
			return nil, uerr
		}
	}
	return ret, nil
}

func (v *vectorizer) vtype(id oid.Oid) (oid.Oid, *UnsupportedError) {
	if v.types.IsVector(id) {
		return id, nil
	}
	vt, ok := v.types.VectorCounterpart(id)
	if !ok {
		name := fmt.Sprintf("%d", id)
		if typ, has := v.types.Lookup(id); has {
			name = typ.Name
		}
		return 0, unsupported("type %s has no vector counterpart", name)
	}
	return vt, nil
}

// expr retypes e for batch evaluation. Columns become vector typed and
// operators are rebound to the entry taking those argument types.
// Constants stay scalar.
func (v *vectorizer) expr(e *Expr) (*Expr, *UnsupportedError) {
	ret := e.copy()
	for _, child := range e.Children {
		c, uerr := v.expr(child)
		if uerr != nil {
			return nil, uerr
		}
		ret.Children = append(ret.Children, c)
	}
	var uerr *UnsupportedError
	switch e.Typ {
	case ET_Var:
		ret.DataTyp, uerr = v.vtype(e.DataTyp)
	case ET_Const:
	case ET_Op:
		ret.DataTyp, uerr = v.rebindOp(e.Name, ret.Children, e.DataTyp)
	case ET_Bool:
		name := e.BoolOp.String()
		for i := range ret.Children {
			args := []*Expr{ret.Children[i]}
			if e.BoolOp != BO_Not {
				//binary kernel applied pairwise
				args = []*Expr{ret.Children[i], ret.Children[i]}
			}
			if _, uerr = v.rebindOp(name, args, oid.T_bool); uerr != nil {
				return nil, uerr
			}
		}
		if anyVector(v.types, ret.Children) {
			ret.DataTyp = common.T_vbool
		}
	case ET_Aggref:
		ret.DataTyp, uerr = v.rebindAgg(e, ret.Children)
	default:
		uerr = unsupported("expression type %s not supported", e.Typ)
	}
	if uerr != nil {
		return nil, uerr
	}
	return ret, nil
}

func anyVector(types *common.TypeMap, exprs []*Expr) bool {
	for _, e := range exprs {
		if types.IsVector(e.DataTyp) {
			return true
		}
	}
	return false
}

// rebindOp finds name over the retyped args and checks it yields the
// vector form of the row result.
func (v *vectorizer) rebindOp(name string, args []*Expr, scalarRes oid.Oid) (oid.Oid, *UnsupportedError) {
	sig := make([]oid.Oid, len(args))
	for i, arg := range args {
		sig[i] = arg.DataTyp
	}
	res, ok := v.ops.OpResult(name, sig)
	if !ok {
		return 0, unsupported("operator %s has no vectorized implementation for %s", name, v.sigString(sig))
	}
	want := scalarRes
	if anyVector(v.types, args) {
		var uerr *UnsupportedError
		if want, uerr = v.vtype(scalarRes); uerr != nil {
			return 0, uerr
		}
	}
	if res != want {
		return 0, unsupported("operator %s over %s returns %d, expected %d", name, v.sigString(sig), res, want)
	}
	return res, nil
}

func (v *vectorizer) rebindAgg(e *Expr, args []*Expr) (oid.Oid, *UnsupportedError) {
	want, uerr := v.vtype(e.DataTyp)
	if uerr != nil {
		return 0, uerr
	}
	//a reference to an aggregate result
	if !e.AggStar && len(args) == 0 {
		return want, nil
	}
	var arg oid.Oid
	if !e.AggStar {
		arg = args[0].DataTyp
		if !v.types.IsVector(arg) {
			if arg, uerr = v.vtype(arg); uerr != nil {
				return 0, uerr
			}
		}
	}
	res, ok := v.ops.AggResult(e.Name, arg, e.AggStar, true)
	if !ok {
		return 0, unsupported("aggregate %s has no vectorized implementation for %s", e.Name, v.sigString([]oid.Oid{arg}))
	}
	if res != want {
		return 0, unsupported("aggregate %s returns %d, expected %d", e.Name, res, want)
	}
	return res, nil
}

func (v *vectorizer) sigString(sig []oid.Oid) string {
	ret := "("
	for i, id := range sig {
		if i > 0 {
			ret += ", "
		}
		if typ, ok := v.types.Lookup(id); ok {
			ret += typ.Name
		} else {
			ret += fmt.Sprintf("%d", id)
		}
	}
	return ret + ")"
}
