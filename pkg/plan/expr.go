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

	"github.com/lib/pq/oid"
	"github.com/xlab/treeprint"

	"github.com/daviszhen/vexec/pkg/common"
)

type ET int

const (
	ET_Var ET = iota //column of the input row
	ET_Const
	ET_Op //operator or row function
	ET_Bool
	ET_Aggref
)

var etToStr = map[ET]string{
	ET_Var:    "var",
	ET_Const:  "const",
	ET_Op:     "op",
	ET_Bool:   "bool",
	ET_Aggref: "aggref",
}

func (t ET) String() string {
	if s, has := etToStr[t]; has {
		return s
	}
	panic(fmt.Sprintf("usp %d", t))
}

type BoolOpType int

const (
	BO_And BoolOpType = iota
	BO_Or
	BO_Not
)

func (bo BoolOpType) String() string {
	switch bo {
	case BO_And:
		return "and"
	case BO_Or:
		return "or"
	case BO_Not:
		return "not"
	}
	panic(fmt.Sprintf("usp bool op %d", bo))
}

// Expr is a bound expression. Var reads input column AttNo. In the
// output of an aggregation, the input row is the group keys followed
// by the aggregate results, and an Aggref there reads column AttNo
// as well.
type Expr struct {
	Typ     ET
	DataTyp oid.Oid
	Name    string
	Alias   string
	AttNo   int
	Const   common.Value
	BoolOp  BoolOpType
	AggStar bool
	AggNo   int

	Children []*Expr
}

func (e *Expr) copy() *Expr {
	ret := *e
	ret.Children = nil
	return &ret
}

// OutputName is the column name the expression produces.
func (e *Expr) OutputName() string {
	if e.Alias != "" {
		return e.Alias
	}
	switch e.Typ {
	case ET_Var:
		return e.Name
	case ET_Aggref:
		return e.Name
	case ET_Op:
		if isIdent(e.Name) {
			return e.Name
		}
	}
	return "?column?"
}

func isIdent(s string) bool {
	for _, c := range s {
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return s != ""
}

// Walk visits e and its children depth first. It stops at the first
// error.
func (e *Expr) Walk(fn func(*Expr) error) error {
	if e == nil {
		return nil
	}
	if err := fn(e); err != nil {
		return err
	}
	for _, child := range e.Children {
		if err := child.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

func (e *Expr) String() string {
	sb := strings.Builder{}
	e.format(&sb)
	return sb.String()
}

func (e *Expr) format(sb *strings.Builder) {
	switch e.Typ {
	case ET_Var:
		fmt.Fprintf(sb, "%s#%d", e.Name, e.AttNo)
	case ET_Const:
		if e.Const.IsNull {
			sb.WriteString("NULL")
		} else if e.Const.Typ != nil && e.Const.Typ.Kind == common.KindString {
			fmt.Fprintf(sb, "'%s'", e.Const.String())
		} else {
			sb.WriteString(e.Const.String())
		}
	case ET_Op:
		if len(e.Children) == 2 && !isIdent(e.Name) {
			sb.WriteByte('(')
			e.Children[0].format(sb)
			fmt.Fprintf(sb, " %s ", e.Name)
			e.Children[1].format(sb)
			sb.WriteByte(')')
			return
		}
		sb.WriteString(e.Name)
		formatArgs(sb, e.Children)
	case ET_Bool:
		if e.BoolOp == BO_Not {
			sb.WriteString("NOT ")
			e.Children[0].format(sb)
			return
		}
		sb.WriteByte('(')
		for i, child := range e.Children {
			if i > 0 {
				fmt.Fprintf(sb, " %s ", strings.ToUpper(e.BoolOp.String()))
			}
			child.format(sb)
		}
		sb.WriteByte(')')
	case ET_Aggref:
		sb.WriteString(e.Name)
		if e.AggStar {
			sb.WriteString("(*)")
		} else if len(e.Children) == 0 {
			fmt.Fprintf(sb, "#%d", e.AttNo)
		} else {
			formatArgs(sb, e.Children)
		}
	default:
		panic(fmt.Sprintf("usp expr type %d", e.Typ))
	}
}

func formatArgs(sb *strings.Builder, args []*Expr) {
	sb.WriteByte('(')
	for i, arg := range args {
		if i > 0 {
			sb.WriteString(", ")
		}
		arg.format(sb)
	}
	sb.WriteByte(')')
}

func (e *Expr) Print(tree treeprint.Tree, types *common.TypeMap) {
	typName := fmt.Sprintf("%d", e.DataTyp)
	if typ, ok := types.Lookup(e.DataTyp); ok {
		typName = typ.Name
	}
	tree.AddMetaNode(typName, e.String())
}

func copyExprs(exprs []*Expr) []*Expr {
	if exprs == nil {
		return nil
	}
	ret := make([]*Expr, len(exprs))
	for i, e := range exprs {
		ret[i] = e.copy()
		ret[i].Children = copyExprs(e.Children)
	}
	return ret
}
