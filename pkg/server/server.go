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
	"context"
	"fmt"

	wire "github.com/jeroenrinzema/psql-wire"
	"github.com/lib/pq/oid"
	"go.uber.org/zap"

	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/compute"
	"github.com/daviszhen/vexec/pkg/util"
)

// Server answers SELECT statements over the postgres wire protocol.
type Server struct {
	eng  *compute.Engine
	addr string
}

func New(eng *compute.Engine) *Server {
	return &Server{
		eng:  eng,
		addr: eng.Config().Server.Addr,
	}
}

func (srv *Server) ListenAndServe() error {
	util.Info("server listening", zap.String("addr", srv.addr))
	return wire.ListenAndServe(srv.addr, srv.handler)
}

func (srv *Server) handler(ctx context.Context, query string) (wire.PreparedStatements, error) {
	util.Info("incoming SQL :", zap.String("query", query))
	res, err := srv.eng.Query(ctx, query)
	if err != nil {
		util.Error("query failed", zap.String("query", query), zap.Error(err))
		return nil, err
	}
	if res.Notice != "" {
		util.Warn(res.Notice, zap.String("query", query))
	}
	execCtx := &ExecCtx{
		cfg: srv.eng.Config(),
		res: res,
	}
	return wire.Prepared(
		wire.NewStatement(execCtx.handleX,
			wire.WithColumns(Columns(res.Desc)),
		),
	), nil
}

type ExecCtx struct {
	cfg *util.Config
	res *compute.Result
}

func (exec *ExecCtx) handleX(ctx context.Context, writer wire.DataWriter, parameters []wire.Parameter) error {
	defer exec.res.Close()
	limit := exec.cfg.Debug.MaxOutputRowCount
	cnt := 0
	for limit <= 0 || cnt < limit {
		row, ok, err := exec.res.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err = writer.Row(TextRow(row)); err != nil {
			return err
		}
		cnt++
	}
	if err := exec.res.Close(); err != nil {
		return err
	}
	return writer.Complete(fmt.Sprintf("SELECT %d", cnt))
}

// Columns describes every output column as text.
func Columns(desc *common.TupleDesc) wire.Columns {
	cols := make(wire.Columns, 0, desc.Natts())
	for _, attr := range desc.Attrs {
		width := int16(attr.Typ.Len)
		if attr.Typ.IsVarlena() {
			width = -1
		}
		cols = append(cols, wire.Column{
			Name:  attr.Name,
			Oid:   oid.T_varchar,
			Width: width,
		})
	}
	return cols
}

// TextRow renders row in text format. Nulls stay nil.
func TextRow(row compute.Row) []any {
	ret := make([]any, len(row))
	for i, val := range row {
		if val.IsNull {
			continue
		}
		ret[i] = val.String()
	}
	return ret
}
