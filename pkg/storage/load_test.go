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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/daviszhen/vexec/pkg/common"
	"github.com/daviszhen/vexec/pkg/datum"
	"github.com/daviszhen/vexec/pkg/util"
)

func writeParquet(t *testing.T, path string) {
	md := []string{
		"name=id, type=INT32",
		"name=name, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN",
		"name=price, type=DOUBLE",
	}
	fw, err := local.NewLocalFileWriter(path)
	require.NoError(t, err)
	pw, err := writer.NewCSVWriter(md, fw, 1)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, pw.Write([]interface{}{int32(i), "p", float64(i) + 0.5}))
	}
	require.NoError(t, pw.WriteStop())
	require.NoError(t, fw.Close())
}

func TestLoadTables(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "t.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("1|a|2024-01-02\n2||\n3|c|2024-03-04\n"), 0644))
	pqPath := filepath.Join(dir, "p.parquet")
	writeParquet(t, pqPath)

	st := NewStorage(common.NewTypeMap())
	tabs := []util.TableConfig{
		{
			Name: "t", Path: csvPath, Format: "csv", Storage: "heap", Delimiter: "|",
			Columns: []util.ColumnConfig{{Name: "id", Type: "int4"}, {Name: "name", Type: "text"}, {Name: "d", Type: "date"}},
		},
		{
			Name: "p", Path: pqPath, Format: "parquet", Storage: "column",
			Columns: []util.ColumnConfig{{Name: "id", Type: "int4"}, {Name: "name", Type: "text"}, {Name: "price", Type: "float8"}},
		},
	}
	require.NoError(t, st.LoadTables(context.Background(), tabs))

	rel, err := st.Catalog.Lookup("t")
	require.NoError(t, err)
	desc := rel.Desc()
	scan := rel.BeginScan(st.Xlog.Snapshot(InvalidXid))
	defer scan.End()
	assert.Equal(t, []int64{1, 2, 3}, scanIds(t, scan, desc, datum.FormatHeap))

	prel, err := st.Catalog.Lookup("p")
	require.NoError(t, err)
	assert.Equal(t, 5, prel.(*ColumnRelation).Rows())
	pscan := prel.BeginScan(nil)
	defer pscan.End()
	assert.Equal(t, []int64{0, 1, 2, 3, 4}, scanIds(t, pscan, prel.Desc(), datum.FormatHeap))

	//same name again
	assert.ErrorIs(t, st.LoadTables(context.Background(), tabs[:1]), ErrRelationExists)
}

func TestLoadCSVNulls(t *testing.T) {
	tm := common.NewTypeMap()
	dir := t.TempDir()
	path := filepath.Join(dir, "n.csv")
	require.NoError(t, os.WriteFile(path, []byte("1,,\\N\n"), 0644))
	st := NewStorage(tm)
	tab := util.TableConfig{
		Name: "n", Path: path, Format: "csv", Storage: "temp",
		Columns: []util.ColumnConfig{{Name: "a", Type: "int4"}, {Name: "b", Type: "text"}, {Name: "c", Type: "text"}},
	}
	rel, err := st.CreateTable(tab)
	require.NoError(t, err)
	cnt, err := st.Load(context.Background(), rel, tab)
	require.NoError(t, err)
	assert.Equal(t, 1, cnt)

	scan := rel.BeginScan(st.Xlog.Snapshot(InvalidXid))
	defer scan.End()
	tup, ok, err := scan.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	hdr, err := datum.ReadHeader(tup.Data, datum.FormatMinimal)
	require.NoError(t, err)
	assert.False(t, hdr.AttIsNull(1))
	assert.True(t, hdr.AttIsNull(2))
}

func TestLoadBadInput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("x\n"), 0644))
	st := NewStorage(common.NewTypeMap())
	tab := util.TableConfig{
		Name: "bad", Path: path, Format: "csv",
		Columns: []util.ColumnConfig{{Name: "a", Type: "int4"}},
	}
	rel, err := st.CreateTable(tab)
	require.NoError(t, err)
	_, err = st.Load(context.Background(), rel, tab)
	assert.Error(t, err)
	//the aborted rows stay invisible
	scan := rel.BeginScan(st.Xlog.Snapshot(InvalidXid))
	defer scan.End()
	assert.Empty(t, scanIds(t, scan, rel.Desc(), datum.FormatHeap))

	_, err = st.CreateTable(util.TableConfig{
		Name: "u", Columns: []util.ColumnConfig{{Name: "a", Type: "nosuchtype"}},
	})
	assert.ErrorIs(t, err, common.ErrTypeNotFound)
}
