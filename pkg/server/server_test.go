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

package server

import (
	"testing"

	"github.com/lib/pq/oid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/compute"
)

func TestColumnsAndRows(t *testing.T) {
	tm := common.NewTypeMap()
	desc := common.NewTupleDesc(
		common.Attribute{Name: "id", Typ: tm.MustLookup(oid.T_int4)},
		common.Attribute{Name: "name", Typ: tm.MustLookup(oid.T_text)},
	)
	cols := Columns(desc)
	require.Len(t, cols, 2)
	assert.Equal(t, "id", cols[0].Name)
	assert.Equal(t, int16(4), cols[0].Width)
	assert.Equal(t, int16(-1), cols[1].Width)
	assert.Equal(t, oid.T_varchar, cols[1].Oid)

	row := compute.Row{
		common.IntValue(desc.Attrs[0].Typ, 7),
		common.NullValue(desc.Attrs[1].Typ),
	}
	assert.Equal(t, []any{"7", nil}, TextRow(row))
}
