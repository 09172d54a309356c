package common

import (
	"testing"

	"github.com/lib/pq/oid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeMapPairs(t *testing.T) {
	tm := NewTypeMap()
	pairs := []struct {
		scalar oid.Oid
		vector oid.Oid
	}{
		{oid.T_any, T_vany},
		{oid.T_int2, T_vint2},
		{oid.T_int4, T_vint4},
		{oid.T_int8, T_vint8},
		{oid.T_float4, T_vfloat4},
		{oid.T_float8, T_vfloat8},
		{oid.T_bool, T_vbool},
		{oid.T_text, T_vtext},
		{oid.T_date, T_vdate},
		{oid.T_bpchar, T_vbpchar},
		{oid.T_timestamp, T_vtimestamp},
		{oid.T_varchar, T_vvarchar},
		{oid.T_numeric, T_vnumeric},
		{oid.T_interval, T_vinterval},
	}
	for _, p := range pairs {
		v, ok := tm.VectorCounterpart(p.scalar)
		require.True(t, ok)
		assert.Equal(t, p.vector, v)
		s, ok := tm.ScalarCounterpart(p.vector)
		require.True(t, ok)
		assert.Equal(t, p.scalar, s)

		st := tm.MustLookup(p.scalar)
		vt := tm.MustLookup(p.vector)
		assert.False(t, st.Vector)
		assert.True(t, vt.Vector)
		assert.Equal(t, st.Len, vt.Len)
		assert.Equal(t, st.Align, vt.Align)
		assert.Equal(t, "v"+st.Name, vt.Name)
	}

	_, ok := tm.VectorCounterpart(oid.T_json)
	assert.False(t, ok)
	_, ok = tm.ScalarCounterpart(oid.T_int4)
	assert.False(t, ok)

	ti, ok := tm.LookupName("bigint")
	require.True(t, ok)
	assert.Equal(t, oid.T_int8, ti.Id)
}

func TestTupleDescRetype(t *testing.T) {
	tm := NewTypeMap()
	desc := NewTupleDesc(
		Attribute{Name: "a", Typ: tm.MustLookup(oid.T_int4)},
		Attribute{Name: "b", Typ: tm.MustLookup(oid.T_text)},
	)
	vdesc, err := desc.Vectorize(tm)
	require.NoError(t, err)
	assert.Equal(t, T_vint4, vdesc.Attrs[0].Typ.Id)
	assert.Equal(t, T_vtext, vdesc.Attrs[1].Typ.Id)
	//source untouched
	assert.Equal(t, oid.T_int4, desc.Attrs[0].Typ.Id)

	back, err := vdesc.Scalarize(tm)
	require.NoError(t, err)
	assert.Equal(t, desc.Types(), back.Types())
	assert.Equal(t, 1, back.Index("b"))
	assert.Equal(t, -1, back.Index("c"))

	bad := NewTupleDesc(Attribute{Name: "j", Typ: &TypeInfo{Id: oid.T_json, Name: "json"}})
	_, err = bad.Vectorize(tm)
	assert.ErrorIs(t, err, ErrTypeNotFound)
}

func TestValueParseFormat(t *testing.T) {
	tm := NewTypeMap()
	cases := []struct {
		typ oid.Oid
		in  string
		out string
	}{
		{oid.T_int4, "42", "42"},
		{oid.T_int8, " -7 ", "-7"},
		{oid.T_float8, "1.5", "1.5"},
		{oid.T_bool, "true", "t"},
		{oid.T_text, "hello", "hello"},
		{oid.T_date, "2000-01-02", "2000-01-02"},
		{oid.T_date, "1999-12-31", "1999-12-31"},
		{oid.T_timestamp, "2024-03-04 05:06:07", "2024-03-04 05:06:07"},
		{oid.T_numeric, "12.50", "12.50"},
		{oid.T_interval, "90 day", "90 days"},
	}
	for _, c := range cases {
		val, err := ParseValue(tm.MustLookup(c.typ), c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.out, val.String())
	}

	_, err := ParseValue(tm.MustLookup(oid.T_int2), "70000")
	assert.Error(t, err)

	d, err := ParseDate("2000-01-02")
	require.NoError(t, err)
	assert.Equal(t, int32(1), d)
}

func TestCompareValue(t *testing.T) {
	tm := NewTypeMap()
	i4 := tm.MustLookup(oid.T_int4)
	f8 := tm.MustLookup(oid.T_float8)
	txt := tm.MustLookup(oid.T_text)
	assert.Equal(t, -1, CompareValue(IntValue(i4, 1), IntValue(i4, 2)))
	assert.Equal(t, 0, CompareValue(IntValue(i4, 2), FloatValue(f8, 2.0)))
	assert.Equal(t, 1, CompareValue(StringValue(txt, "b"), StringValue(txt, "a")))
	assert.Equal(t, 1, CompareNullsLast(NullValue(i4), IntValue(i4, 1)))
	assert.Equal(t, -1, CompareNullsLast(IntValue(i4, 1), NullValue(i4)))
}
