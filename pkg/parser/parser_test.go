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

package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser(t *testing.T) {
	stmts, err := Parse("SELECT 42")
	assert.NoError(t, err)
	assert.Equal(t, 1, len(stmts))
	assert.Equal(t, int32(42), stmts[0].Stmt.GetSelectStmt().GetTargetList()[0].GetResTarget().GetVal().GetAConst().GetIval().Ival)
}

func TestParseSelect(t *testing.T) {
	sel, err := ParseSelect("select id, count(*) from t where id > 3 group by id order by 1 limit 10")
	require.NoError(t, err)
	assert.Len(t, sel.GetTargetList(), 2)
	assert.Len(t, sel.GetFromClause(), 1)
	assert.NotNil(t, sel.GetWhereClause())
	assert.Len(t, sel.GetGroupClause(), 1)
	assert.Len(t, sel.GetSortClause(), 1)
	assert.NotNil(t, sel.GetLimitCount())
}

func TestParseSelectRejects(t *testing.T) {
	bad := []string{
		"create schema s1",
		"select 1; select 2",
		"select 1 union select 2",
		"with w as (select 1) select * from w",
		"values (1)",
	}
	for _, sql := range bad {
		_, err := ParseSelect(sql)
		assert.ErrorIs(t, err, ErrNotSelect, sql)
	}

	_, err := ParseSelect("select from where")
	assert.Error(t, err)
}
