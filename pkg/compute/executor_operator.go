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
	"github.com/daviszhen/vexec/pkg/chunk"
	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/storage"
	"github.com/daviszhen/vexec/pkg/vtype"
)

// 向量扫描状态
type OprVScanState struct {
	phase ScanPhase
	rel   storage.Relation
	// 行存或者物化的列存
	pageScan storage.PageScan
	// 直接解码列存
	colScan *storage.ColumnScan
	// relation attno -> scan batch column
	colMap []int
	eager  bool

	scanBatch *chunk.Batch
	outBatch  *chunk.Batch
	qualExec  *ExprExec
	projExec  *ExprExec
}

// 向量聚合状态
type OprVAggState struct {
	aggEntries []*vtype.AggEntry
	argExec    *ExprExec
	table      *groupTable
	// 每行对应的聚合状态
	entries [][]vtype.TransValue

	// 输出
	built    bool
	groups   []*aggGroup
	pos      int
	finished bool
	aggRow   *chunk.Batch
	outBatch *chunk.Batch
	outExec  *ExprExec
}

// 批转行状态
type OprUnbatchState struct {
	batch *chunk.Batch
	pos   int
	done  bool
}

// 扫描状态
type OprScanState struct {
	pageScan storage.PageScan
	deformer *chunk.Deformer
	values   []common.Value
}

// 聚合状态
type OprAggrState struct {
	rowAggEntries []*vtype.AggEntry
	rowTable      *groupTable
	rowGroups     []*aggGroup
	rowPos        int
	rowBuilt      bool
	// sorted strategy
	cur      *aggGroup
	inputEnd bool
}

// 排序状态
type OprSortState struct {
	rows    []Row
	sortPos int
	sorted  bool
}

// 限制状态
type OprLimitState struct {
	skipped  int64
	returned int64
}

type OprResultState struct {
	resultDone bool
}

type OperatorState struct {
	OprVScanState
	OprVAggState
	OprUnbatchState
	OprScanState
	OprAggrState
	OprSortState
	OprLimitState
	OprResultState

	rowExec *RowExprExec
}
