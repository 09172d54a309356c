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
	treemap "github.com/liyue201/gostl/ds/map"
	"github.com/pkg/errors"

	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/plan"
	"github.com/daviszhen/vexec/pkg/vtype"
)

type aggGroup struct {
	keys   []common.Value
	states []vtype.TransValue
}

// groupTable holds the groups of an aggregation ordered by key. Null
// keys sort after every other value.
type groupTable struct {
	nagg   int
	groups *treemap.Map[[]common.Value, *aggGroup]
}

func compareKeys(a, b []common.Value) int {
	for i := range a {
		if c := common.CompareNullsLast(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

func newGroupTable(nagg int) *groupTable {
	return &groupTable{
		nagg:   nagg,
		groups: treemap.New[[]common.Value, *aggGroup](compareKeys),
	}
}

// lookup returns the group of keys, creating it when missing. keys
// must not be modified afterwards.
func (gt *groupTable) lookup(keys []common.Value) *aggGroup {
	get, err := gt.groups.Get(keys)
	if err == nil {
		return get
	}
	group := &aggGroup{
		keys:   keys,
		states: make([]vtype.TransValue, gt.nagg),
	}
	gt.groups.Insert(keys, group)
	return group
}

func (gt *groupTable) Len() int {
	return gt.groups.Size()
}

// sorted lists the groups in key order.
func (gt *groupTable) sorted() []*aggGroup {
	ret := make([]*aggGroup, 0, gt.groups.Size())
	for iter := gt.groups.Begin(); iter.IsValid(); iter.Next() {
		ret = append(ret, iter.Value())
	}
	return ret
}

// lookupAggs resolves the implementation of every aggregate.
func lookupAggs(env *ExecEnv, aggs []*plan.Expr, vector bool) ([]*vtype.AggEntry, error) {
	ret := make([]*vtype.AggEntry, len(aggs))
	for i, agg := range aggs {
		var arg oid.Oid
		if !agg.AggStar {
			arg = agg.Children[0].DataTyp
			if vector && !env.Types.IsVector(arg) {
				if vid, ok := env.Types.VectorCounterpart(arg); ok {
					arg = vid
				}
			}
		}
		entry, ok := env.Ops.LookupAgg(agg.Name, arg, agg.AggStar, vector)
		if !ok {
			return nil, errors.Errorf("aggregate %s has no implementation for type %d", agg.Name, arg)
		}
		ret[i] = entry
	}
	return ret, nil
}
