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

package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	pqLocal "github.com/xitongsys/parquet-go-source/local"
	pqReader "github.com/xitongsys/parquet-go/reader"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/util"
)

const (
	unixToPgDays  = 10957
	unixToPgUsecs = int64(unixToPgDays) * 86400 * 1000000
)

// Storage bundles the collaborators a query engine reads from.
type Storage struct {
	Types   *common.TypeMap
	Pool    *BufferPool
	Xlog    *XactLog
	Catalog *Catalog
}

func NewStorage(types *common.TypeMap) *Storage {
	return &Storage{
		Types:   types,
		Pool:    NewBufferPool(),
		Xlog:    NewXactLog(),
		Catalog: NewCatalog(),
	}
}

// CreateTable makes an empty relation for tab and registers it.
func (st *Storage) CreateTable(tab util.TableConfig) (Relation, error) {
	attrs := make([]common.Attribute, 0, len(tab.Columns))
	for _, col := range tab.Columns {
		typ, ok := st.Types.LookupName(col.Type)
		if !ok {
			return nil, errors.Wrapf(common.ErrTypeNotFound, "column %s.%s type %s", tab.Name, col.Name, col.Type)
		}
		attrs = append(attrs, common.Attribute{Name: col.Name, Typ: typ})
	}
	desc := common.NewTupleDesc(attrs...)
	var rel Relation
	switch tab.Storage {
	case "", "heap":
		rel = NewHeapRelation(tab.Name, desc, st.Pool)
	case "temp":
		rel = NewTempRelation(tab.Name, desc)
	case "column":
		rel = NewColumnRelation(tab.Name, desc, DefaultBlockRows)
	default:
		return nil, fmt.Errorf("table %s: invalid storage %q", tab.Name, tab.Storage)
	}
	if err := st.Catalog.Register(rel); err != nil {
		return nil, err
	}
	return rel, nil
}

// LoadTables creates and fills every table concurrently.
func (st *Storage) LoadTables(ctx context.Context, tabs []util.TableConfig) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, tab := range tabs {
		tab := tab
		g.Go(func() error {
			rel, err := st.CreateTable(tab)
			if err != nil {
				return err
			}
			cnt, err := st.Load(ctx, rel, tab)
			if err != nil {
				util.Error("load table failed",
					zap.String("table", tab.Name),
					zap.String("path", tab.Path),
					zap.Error(err))
				return err
			}
			util.Info("table loaded",
				zap.String("table", tab.Name),
				zap.String("storage", rel.Kind().String()),
				zap.Int("rows", cnt))
			return nil
		})
	}
	return g.Wait()
}

// Load reads the data file of tab into rel in one transaction and
// returns the number of rows.
func (st *Storage) Load(ctx context.Context, rel Relation, tab util.TableConfig) (int, error) {
	xid := st.Xlog.Begin()
	var sink func([]common.Value) error
	switch r := rel.(type) {
	case *HeapRelation:
		sink = func(values []common.Value) error {
			_, err := r.Insert(xid, values)
			return err
		}
	case *ColumnRelation:
		sink = r.Append
		defer r.Flush()
	default:
		panic("usp")
	}
	var cnt int
	var err error
	switch tab.Format {
	case "csv":
		cnt, err = loadCSV(ctx, tab, rel.Desc(), sink)
	case "parquet":
		cnt, err = loadParquet(ctx, tab, rel.Desc(), sink)
	default:
		err = fmt.Errorf("table %s: invalid format %q", tab.Name, tab.Format)
	}
	if err != nil {
		_ = st.Xlog.Abort(xid)
		return 0, err
	}
	return cnt, st.Xlog.Commit(xid)
}

func loadCSV(ctx context.Context, tab util.TableConfig, desc *common.TupleDesc, sink func([]common.Value) error) (int, error) {
	dataFile, err := os.OpenFile(tab.Path, os.O_RDONLY, 0755)
	if err != nil {
		return 0, err
	}
	defer dataFile.Close()

	reader := csv.NewReader(dataFile)
	if tab.Delimiter != "" {
		reader.Comma = rune(tab.Delimiter[0])
	}
	reader.FieldsPerRecord = -1
	values := make([]common.Value, desc.Natts())
	cnt := 0
	for {
		line, err := reader.Read()
		if err != nil {
			//EOF
			if errors.Is(err, io.EOF) {
				break
			}
			return cnt, err
		}
		if cnt%util.DefaultVectorSize == 0 {
			if err = ctx.Err(); err != nil {
				return cnt, err
			}
		}
		if len(line) < desc.Natts() {
			return cnt, fmt.Errorf("line %d: no enough fields in the line", cnt+1)
		}
		for j, attr := range desc.Attrs {
			values[j], err = fieldToValue(line[j], attr.Typ)
			if err != nil {
				return cnt, errors.Wrapf(err, "line %d column %s", cnt+1, attr.Name)
			}
		}
		if err = sink(values); err != nil {
			return cnt, err
		}
		cnt++
	}
	return cnt, nil
}

// fieldToValue treats \N and empty non-text fields as NULL.
func fieldToValue(field string, typ *common.TypeInfo) (common.Value, error) {
	if field == `\N` || (field == "" && typ.Kind != common.KindString) {
		return common.NullValue(typ), nil
	}
	return common.ParseValue(typ, field)
}

func loadParquet(ctx context.Context, tab util.TableConfig, desc *common.TupleDesc, sink func([]common.Value) error) (int, error) {
	pqFile, err := pqLocal.NewLocalFileReader(tab.Path)
	if err != nil {
		return 0, err
	}
	defer pqFile.Close()
	reader, err := pqReader.NewParquetColumnReader(pqFile, 1)
	if err != nil {
		return 0, err
	}
	defer reader.ReadStop()

	total := int(reader.GetNumRows())
	natts := desc.Natts()
	cols := make([][]interface{}, natts)
	values := make([]common.Value, natts)
	cnt := 0
	for cnt < total {
		if err = ctx.Err(); err != nil {
			return cnt, err
		}
		n := min(util.DefaultVectorSize, total-cnt)
		for j := 0; j < natts; j++ {
			cols[j], _, _, err = reader.ReadColumnByIndex(int64(j), int64(n))
			if err != nil {
				return cnt, err
			}
			if len(cols[j]) != n {
				return cnt, fmt.Errorf("column %d has %d values, expected %d", j, len(cols[j]), n)
			}
		}
		for i := 0; i < n; i++ {
			for j, attr := range desc.Attrs {
				values[j], err = parquetToValue(cols[j][i], attr.Typ)
				if err != nil {
					return cnt, errors.Wrapf(err, "row %d column %s", cnt+1, attr.Name)
				}
			}
			if err = sink(values); err != nil {
				return cnt, err
			}
			cnt++
		}
	}
	return cnt, nil
}

// parquetToValue converts a parquet cell. nil is NULL. Dates are days
// and timestamps microseconds since the unix epoch.
func parquetToValue(field any, typ *common.TypeInfo) (common.Value, error) {
	if field == nil {
		return common.NullValue(typ), nil
	}
	switch typ.Kind {
	case common.KindInt, common.KindDate, common.KindTimestamp:
		var v int64
		switch fVal := field.(type) {
		case int32:
			v = int64(fVal)
		case int64:
			v = fVal
		default:
			return common.Value{}, fmt.Errorf("can not convert %T to %s", field, typ.Name)
		}
		switch typ.Kind {
		case common.KindDate:
			v -= unixToPgDays
		case common.KindTimestamp:
			v -= unixToPgUsecs
		}
		return common.IntValue(typ, v), nil
	case common.KindFloat:
		switch fVal := field.(type) {
		case float32:
			return common.FloatValue(typ, float64(fVal)), nil
		case float64:
			return common.FloatValue(typ, fVal), nil
		case int32:
			return common.FloatValue(typ, float64(fVal)), nil
		case int64:
			return common.FloatValue(typ, float64(fVal)), nil
		}
	case common.KindBool:
		if b, ok := field.(bool); ok {
			return common.BoolValue(typ, b), nil
		}
	case common.KindString:
		if s, ok := field.(string); ok {
			return common.StringValue(typ, s), nil
		}
	case common.KindNumeric:
		if s, ok := field.(string); ok {
			return common.ParseValue(typ, strings.TrimSpace(s))
		}
	}
	return common.Value{}, fmt.Errorf("can not convert %T to %s", field, typ.Name)
}
