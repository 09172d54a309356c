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
	"context"

	"go.uber.org/zap"

	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/metrics"
	"github.com/daviszhen/vexec/pkg/parser"
	"github.com/daviszhen/vexec/pkg/plan"
	"github.com/daviszhen/vexec/pkg/storage"
	"github.com/daviszhen/vexec/pkg/util"
	"github.com/daviszhen/vexec/pkg/vtype"
)

// Engine plans and runs SELECT statements over the tables of its
// storage.
type Engine struct {
	cfg     *util.Config
	types   *common.TypeMap
	ops     *vtype.Registry
	storage *storage.Storage
	metrics *metrics.Metrics
}

func NewEngine(cfg *util.Config) *Engine {
	types := common.NewTypeMap()
	m := metrics.New()
	st := storage.NewStorage(types)
	st.Pool.SetGauge(m.PinGauge)
	return &Engine{
		cfg:     cfg,
		types:   types,
		ops:     vtype.NewRegistry(types),
		storage: st,
		metrics: m,
	}
}

func (eng *Engine) Config() *util.Config {
	return eng.cfg
}

func (eng *Engine) Types() *common.TypeMap {
	return eng.types
}

func (eng *Engine) Ops() *vtype.Registry {
	return eng.ops
}

func (eng *Engine) Storage() *storage.Storage {
	return eng.storage
}

func (eng *Engine) Metrics() *metrics.Metrics {
	return eng.metrics
}

// LoadTables creates and fills the tables named in the config.
func (eng *Engine) LoadTables(ctx context.Context) error {
	return eng.storage.LoadTables(ctx, eng.cfg.Tables)
}

func (eng *Engine) newEnv(ctx context.Context, xid uint32) *ExecEnv {
	return &ExecEnv{
		Ctx:     ctx,
		Cfg:     eng.cfg,
		Types:   eng.types,
		Ops:     eng.ops,
		Catalog: eng.storage.Catalog,
		Snap:    eng.storage.Xlog.Snapshot(xid),
		Metrics: eng.metrics,
	}
}

// Plan builds the plan of sql. When vectorization is enabled but not
// possible, the row plan comes back with the reason.
func (eng *Engine) Plan(sql string) (*plan.PlanNode, *plan.UnsupportedError, error) {
	sel, err := parser.ParseSelect(sql)
	if err != nil {
		return nil, nil, err
	}
	root, err := plan.Build(sel, eng.storage.Catalog, eng.types, eng.ops)
	if err != nil {
		return nil, nil, err
	}
	if !eng.cfg.Vectorize.Enable {
		return root, nil, nil
	}
	root, uerr := plan.Rewrite(root, eng.types, eng.ops, eng.cfg.Vectorize.BatchSize)
	return root, uerr, nil
}

func (eng *Engine) Explain(sql string) (ret string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = util.ConvertPanicError(rec)
		}
	}()
	root, uerr, err := eng.Plan(sql)
	if err != nil {
		return "", err
	}
	ret = plan.Explain(root, eng.types)
	if uerr != nil && eng.cfg.Vectorize.Notice {
		ret += "NOTICE: " + uerr.Error() + "\n"
	}
	return ret, nil
}

// Query starts sql. The caller drains the result with Next and must
// Close it.
func (eng *Engine) Query(ctx context.Context, sql string) (res *Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res = nil
			err = util.ConvertPanicError(rec)
		}
	}()
	root, uerr, err := eng.Plan(sql)
	if err != nil {
		return nil, err
	}
	if eng.cfg.Debug.PrintPlan {
		util.Info("query plan", zap.String("plan", plan.Explain(root, eng.types)))
	}
	res = &Result{
		Desc:       root.Desc,
		Vectorized: root.Vectorized(),
		eng:        eng,
	}
	if uerr != nil {
		eng.metrics.FallbackCounter.Inc()
		if eng.cfg.Vectorize.Notice {
			res.Notice = uerr.Error()
		}
	}
	engine := "row"
	if res.Vectorized {
		engine = "vector"
	}
	eng.metrics.QueryCounter.WithLabelValues(engine).Inc()

	res.xid = eng.storage.Xlog.Begin()
	res.run = NewRunner(eng.newEnv(ctx, res.xid), root)
	if err = res.run.Init(); err != nil {
		_ = res.run.Close()
		_ = eng.storage.Xlog.Abort(res.xid)
		return nil, err
	}
	return res, nil
}

// Result is a running query.
type Result struct {
	Desc *common.TupleDesc
	// Notice explains why the query was not vectorized.
	Notice     string
	Vectorized bool

	eng    *Engine
	run    *Runner
	xid    uint32
	closed bool
}

func (res *Result) Next() (row Row, ok bool, err error) {
	if res.closed {
		return nil, false, nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			row, ok = nil, false
			err = util.ConvertPanicError(rec)
		}
	}()
	return res.run.Next()
}

// Close releases the plan and ends the query transaction. It may be
// called more than once.
func (res *Result) Close() error {
	if res.closed {
		return nil
	}
	res.closed = true
	if err := res.run.Close(); err != nil {
		_ = res.eng.storage.Xlog.Abort(res.xid)
		return err
	}
	return res.eng.storage.Xlog.Commit(res.xid)
}

// All drains and closes the result.
func (res *Result) All() ([]Row, error) {
	defer res.Close()
	var rows []Row
	for {
		row, ok, err := res.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return rows, nil
		}
		rows = append(rows, row)
	}
}
