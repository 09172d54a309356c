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
	"strings"

	"github.com/xlab/treeprint"

	"github.com/daviszhen/vexec/pkg/common"
)

type PT int

const (
	PT_SeqScan PT = iota
	PT_Agg
	PT_Sort
	PT_Limit
	PT_Result
	PT_VectorScan
	PT_VectorAgg
	PT_Unbatch
)

var ptToStr = map[PT]string{
	PT_SeqScan:    "SeqScan",
	PT_Agg:        "Agg",
	PT_Sort:       "Sort",
	PT_Limit:      "Limit",
	PT_Result:     "Result",
	PT_VectorScan: "VectorScan",
	PT_VectorAgg:  "VectorAgg",
	PT_Unbatch:    "Unbatch",
}

func (t PT) String() string {
	if s, has := ptToStr[t]; has {
		return s
	}
	panic(fmt.Sprintf("usp %d", t))
}

// Vector reports whether the node exchanges batches.
func (t PT) Vector() bool {
	return t == PT_VectorScan || t == PT_VectorAgg
}

type AggStrategy int

const (
	AggPlain AggStrategy = iota
	AggHashed
	AggSorted
)

func (s AggStrategy) String() string {
	switch s {
	case AggPlain:
		return "plain"
	case AggHashed:
		return "hashed"
	case AggSorted:
		return "sorted"
	}
	panic(fmt.Sprintf("usp agg strategy %d", s))
}

// SortKey orders by output column Col of the child.
type SortKey struct {
	Col        int
	Desc       bool
	NullsFirst bool
}

const NoLimit = -1

// PlanNode is one operator of a plan tree.
//
// SeqScan/VectorScan: Targets over the relation row, nil means every
// column. Quals are the implicitly AND-ed filters.
//
// Agg/VectorAgg: Aggs and GroupBys are over the child row. Targets and
// Quals (HAVING) are over the group keys followed by the aggregate
// results.
//
// Wrapped is the row node a vectorized node was made from.
type PlanNode struct {
	Typ       PT
	Relation  string
	Desc      *common.TupleDesc
	Targets   []*Expr
	Quals     []*Expr
	Aggs      []*Expr
	GroupBys  []*Expr
	Strategy  AggStrategy
	SortKeys  []SortKey
	Limit     int64
	Offset    int64
	BatchSize int
	Children  []*PlanNode
	Wrapped   *PlanNode
}

func (node *PlanNode) String() string {
	return node.Typ.String()
}

// Vectorized reports whether any node of the tree exchanges batches.
func (node *PlanNode) Vectorized() bool {
	if node.Typ.Vector() || node.Typ == PT_Unbatch {
		return true
	}
	for _, child := range node.Children {
		if child.Vectorized() {
			return true
		}
	}
	return false
}

// Explain renders the plan as a tree.
func Explain(root *PlanNode, types *common.TypeMap) string {
	tree := treeprint.NewWithRoot("Plan:")
	root.Print(tree, types)
	return tree.String()
}

func (node *PlanNode) Print(tree treeprint.Tree, types *common.TypeMap) {
	head := node.Typ.String()
	switch node.Typ {
	case PT_SeqScan, PT_VectorScan:
		head = fmt.Sprintf("%s on %s", head, node.Relation)
	case PT_Agg, PT_VectorAgg:
		head = fmt.Sprintf("%s (%s)", head, node.Strategy)
	case PT_Limit:
		head = fmt.Sprintf("%s %s", head, limitString(node))
	}
	branch := tree.AddBranch(head)
	if node.BatchSize > 0 {
		branch.AddMetaNode("batch", node.BatchSize)
	}
	if node.Desc != nil {
		cols := make([]string, 0, node.Desc.Natts())
		for _, attr := range node.Desc.Attrs {
			cols = append(cols, fmt.Sprintf("%s %s", attr.Name, attr.Typ.Name))
		}
		branch.AddMetaNode("output", strings.Join(cols, ", "))
	}
	writeExprs(branch, "targets", node.Targets, types)
	writeExprs(branch, "quals", node.Quals, types)
	writeExprs(branch, "group by", node.GroupBys, types)
	writeExprs(branch, "aggs", node.Aggs, types)
	if len(node.SortKeys) != 0 {
		keys := branch.AddBranch("sort keys")
		for _, key := range node.SortKeys {
			dir := "asc"
			if key.Desc {
				dir = "desc"
			}
			nulls := "nulls last"
			if key.NullsFirst {
				nulls = "nulls first"
			}
			keys.AddNode(fmt.Sprintf("#%d %s %s", key.Col, dir, nulls))
		}
	}
	for _, child := range node.Children {
		child.Print(branch, types)
	}
}

func limitString(node *PlanNode) string {
	ret := "all"
	if node.Limit != NoLimit {
		ret = fmt.Sprintf("%d", node.Limit)
	}
	if node.Offset > 0 {
		ret += fmt.Sprintf(" offset %d", node.Offset)
	}
	return ret
}

func writeExprs(tree treeprint.Tree, name string, exprs []*Expr, types *common.TypeMap) {
	if len(exprs) == 0 {
		return
	}
	branch := tree.AddBranch(name)
	for _, e := range exprs {
		e.Print(branch, types)
	}
}
