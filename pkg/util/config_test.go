package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig("testdata/vexec.toml")
	require.NoError(t, err)
	assert.True(t, cfg.Vectorize.Enable)
	assert.False(t, cfg.Vectorize.Notice)
	assert.Equal(t, DeformEager, cfg.Vectorize.Deform)
	assert.False(t, cfg.Vectorize.ColumnStream)
	assert.Equal(t, "127.0.0.1:15432", cfg.Server.Addr)
	assert.True(t, cfg.Debug.PrintPlan)
	assert.Equal(t, 10, cfg.Debug.MaxOutputRowCount)
	require.Len(t, cfg.Tables, 1)
	assert.Equal(t, "t1", cfg.Tables[0].Name)
	require.Len(t, cfg.Tables[0].Columns, 2)
	assert.Equal(t, "text", cfg.Tables[0].Columns[1].Type)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.False(t, cfg.Vectorize.Enable)
	assert.True(t, cfg.Vectorize.Notice)

	cfg.Vectorize.Deform = "lazy"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Tables = []TableConfig{{Name: "x", Format: "json"}}
	assert.Error(t, cfg.Validate())
}
