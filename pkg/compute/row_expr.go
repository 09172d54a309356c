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
	"github.com/lib/pq/oid"
	"github.com/pkg/errors"

	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/plan"
	"github.com/daviszhen/vexec/pkg/vtype"
)

// RowExprExec evaluates expressions one row at a time.
type RowExprExec struct {
	types   *common.TypeMap
	ops     *vtype.Registry
	entries map[*plan.Expr]*vtype.OpEntry
	boolTyp *common.TypeInfo
}

func NewRowExprExec(env *ExecEnv) *RowExprExec {
	return &RowExprExec{
		types:   env.Types,
		ops:     env.Ops,
		entries: make(map[*plan.Expr]*vtype.OpEntry),
		boolTyp: env.Types.MustLookup(oid.T_bool),
	}
}

func (exec *RowExprExec) entryOf(e *plan.Expr) (*vtype.OpEntry, error) {
	if entry, has := exec.entries[e]; has {
		return entry, nil
	}
	sig := make([]oid.Oid, len(e.Children))
	for i, child := range e.Children {
		sig[i] = child.DataTyp
	}
	entry, ok := exec.ops.LookupOp(e.Name, sig)
	if !ok || entry.Scalar == nil {
		return nil, errors.Errorf("operator %s does not exist", e.Name)
	}
	exec.entries[e] = entry
	return entry, nil
}

func (exec *RowExprExec) Eval(e *plan.Expr, row Row) (common.Value, error) {
	switch e.Typ {
	case plan.ET_Var, plan.ET_Aggref:
		return row[e.AttNo], nil
	case plan.ET_Const:
		return e.Const, nil
	case plan.ET_Op:
		entry, err := exec.entryOf(e)
		if err != nil {
			return common.Value{}, err
		}
		args := make([]common.Value, len(e.Children))
		for i, child := range e.Children {
			if args[i], err = exec.Eval(child, row); err != nil {
				return common.Value{}, err
			}
		}
		return entry.Scalar(args)
	case plan.ET_Bool:
		return exec.evalBool(e, row)
	default:
		panic("usp")
	}
}

// evalBool uses three-valued logic and stops at the first child that
// decides the result.
func (exec *RowExprExec) evalBool(e *plan.Expr, row Row) (common.Value, error) {
	if e.BoolOp == plan.BO_Not {
		val, err := exec.Eval(e.Children[0], row)
		if err != nil || val.IsNull {
			return common.NullValue(exec.boolTyp), err
		}
		return common.BoolValue(exec.boolTyp, !val.Bool), nil
	}
	dominant := e.BoolOp == plan.BO_Or
	sawNull := false
	for _, child := range e.Children {
		val, err := exec.Eval(child, row)
		if err != nil {
			return common.Value{}, err
		}
		if val.IsNull {
			sawNull = true
			continue
		}
		if val.Bool == dominant {
			return common.BoolValue(exec.boolTyp, dominant), nil
		}
	}
	if sawNull {
		return common.NullValue(exec.boolTyp), nil
	}
	return common.BoolValue(exec.boolTyp, !dominant), nil
}

// Qual reports whether every qual is true for row.
func (exec *RowExprExec) Qual(quals []*plan.Expr, row Row) (bool, error) {
	for _, qual := range quals {
		val, err := exec.Eval(qual, row)
		if err != nil {
			return false, err
		}
		if val.IsNull || !val.Bool {
			return false, nil
		}
	}
	return true, nil
}

func (exec *RowExprExec) Project(targets []*plan.Expr, row Row) (Row, error) {
	ret := make(Row, len(targets))
	for i, target := range targets {
		val, err := exec.Eval(target, row)
		if err != nil {
			return nil, err
		}
		ret[i] = val
	}
	return ret, nil
}
