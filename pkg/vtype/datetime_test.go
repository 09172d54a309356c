package vtype

import (
	"testing"

	"github.com/lib/pq/oid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/vexec/pkg/chunk"
	"github.com/daviszhen/vexec/pkg/common"
)

func dateColumn(t *testing.T, tm *common.TypeMap, vals []string) *chunk.Column {
	typ := tm.MustLookup(oid.T_date)
	col := chunk.NewColumn(typ, len(vals))
	for i, v := range vals {
		if v == "" {
			col.SetValue(i, common.NullValue(typ))
			continue
		}
		val, err := common.ParseValue(typ, v)
		require.NoError(t, err)
		col.SetValue(i, val)
	}
	return col
}

func intervalColumn(t *testing.T, tm *common.TypeMap, text string, n int) *chunk.Column {
	typ := tm.MustLookup(oid.T_interval)
	val, err := common.ParseValue(typ, text)
	require.NoError(t, err)
	col := chunk.NewColumn(typ, n)
	col.Fill(val, n)
	return col
}

func TestDateMinusInterval(t *testing.T) {
	tm := common.NewTypeMap()
	reg := NewRegistry(tm)
	entry, ok := reg.LookupOp("-", []oid.Oid{common.T_vdate, oid.T_interval})
	require.True(t, ok)
	assert.Equal(t, common.T_vtimestamp, entry.Result.Id)

	dates := dateColumn(t, tm, []string{"1998-12-01", "", "2000-03-31", "2000-01-01"})
	res := chunk.NewColumn(entry.Result, 4)
	skip := []bool{false, false, false, true}
	require.NoError(t, entry.Kernel(res, []*chunk.Column{dates, intervalColumn(t, tm, "90 days", 4)}, skip, 4))
	assert.Equal(t, "1998-09-02 00:00:00", common.FormatTimestamp(res.Int64(0)))
	assert.True(t, res.IsNull(1))
	assert.Equal(t, "2000-01-01 00:00:00", common.FormatTimestamp(res.Int64(2)))

	entry, ok = reg.LookupOp("+", []oid.Oid{oid.T_interval, common.T_vdate})
	require.True(t, ok)
	res = chunk.NewColumn(entry.Result, 4)
	require.NoError(t, entry.Kernel(res, []*chunk.Column{intervalColumn(t, tm, "1 month", 4), dates}, make([]bool, 4), 4))
	assert.Equal(t, "1999-01-01 00:00:00", common.FormatTimestamp(res.Int64(0)))
	assert.Equal(t, "2000-04-30 00:00:00", common.FormatTimestamp(res.Int64(2)))
}

func TestTimestampIntervalScalar(t *testing.T) {
	tm := common.NewTypeMap()
	reg := NewRegistry(tm)
	tsTyp := tm.MustLookup(oid.T_timestamp)
	ivTyp := tm.MustLookup(oid.T_interval)
	entry, ok := reg.LookupOp("+", []oid.Oid{oid.T_timestamp, oid.T_interval})
	require.True(t, ok)
	assert.Equal(t, oid.T_timestamp, entry.Result.Id)

	ts, err := common.ParseValue(tsTyp, "2024-01-31 12:00:00")
	require.NoError(t, err)
	iv, err := common.ParseValue(ivTyp, "1 mon 2 hours")
	require.NoError(t, err)
	got, err := entry.Scalar([]common.Value{ts, iv})
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29 14:00:00", got.String())

	entry, ok = reg.LookupOp("-", []oid.Oid{oid.T_timestamp, oid.T_interval})
	require.True(t, ok)
	got, err = entry.Scalar([]common.Value{ts, iv})
	require.NoError(t, err)
	assert.Equal(t, "2023-12-31 10:00:00", got.String())

	_, err = entry.Scalar([]common.Value{common.IntValue(tsTyp, common.MinTimestamp), iv})
	assert.ErrorIs(t, err, common.ErrDatetimeOutOfRange)
}

func TestDateTimestampCompare(t *testing.T) {
	tm := common.NewTypeMap()
	reg := NewRegistry(tm)
	tsTyp := tm.MustLookup(oid.T_timestamp)
	entry, ok := reg.LookupOp("<=", []oid.Oid{common.T_vdate, common.T_vtimestamp})
	require.True(t, ok)

	dates := dateColumn(t, tm, []string{"1998-09-02", "1998-09-03", "", "1998-09-01"})
	stamps := chunk.NewColumn(tsTyp, 4)
	bound, err := common.ParseValue(tsTyp, "1998-09-02 00:00:00")
	require.NoError(t, err)
	stamps.Fill(bound, 4)
	res := chunk.NewColumn(entry.Result, 4)
	require.NoError(t, entry.Kernel(res, []*chunk.Column{dates, stamps}, make([]bool, 4), 4))
	assert.Equal(t, []any{true, false, nil, true}, boolsOf(res, 4))

	entry, ok = reg.LookupOp(">", []oid.Oid{oid.T_timestamp, common.T_vdate})
	require.True(t, ok)
	res = chunk.NewColumn(entry.Result, 4)
	require.NoError(t, entry.Kernel(res, []*chunk.Column{stamps, dates}, make([]bool, 4), 4))
	assert.Equal(t, []any{false, false, nil, true}, boolsOf(res, 4))
}

func TestIntervalOps(t *testing.T) {
	tm := common.NewTypeMap()
	reg := NewRegistry(tm)
	entry, ok := reg.LookupOp("=", []oid.Oid{common.T_vinterval, oid.T_interval})
	require.True(t, ok)
	res := chunk.NewColumn(entry.Result, 2)
	left := intervalColumn(t, tm, "1 mon", 2)
	right := intervalColumn(t, tm, "30 days", 2)
	right.Nulls[1] = true
	require.NoError(t, entry.Kernel(res, []*chunk.Column{left, right}, make([]bool, 2), 2))
	assert.Equal(t, []any{true, nil}, boolsOf(res, 2))

	entry, ok = reg.LookupOp("-", []oid.Oid{common.T_vinterval})
	require.True(t, ok)
	neg := chunk.NewColumn(entry.Result, 2)
	require.NoError(t, entry.Kernel(neg, []*chunk.Column{left}, make([]bool, 2), 2))
	assert.Equal(t, common.Interval{Months: -1}, common.DecodeInterval(neg.Bytes(0)))
}
