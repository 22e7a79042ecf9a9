package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("XW_INT", "42")
	t.Setenv("XW_BOOL", "true")
	t.Setenv("XW_DUR", "250ms")
	t.Setenv("XW_DUR_SEC", "3")
	t.Setenv("XW_BAD", "abc")

	assert.Equal(t, int64(42), GetIntEnv("XW_INT"))
	assert.Equal(t, int64(7), GetIntEnvOr("XW_MISSING", 7))
	assert.Equal(t, int64(7), GetIntEnvOr("XW_BAD", 7))
	assert.True(t, GetBoolEnv("XW_BOOL"))
	assert.False(t, GetBoolEnv("XW_MISSING"))
	assert.Equal(t, 250*time.Millisecond, GetDurationEnvOr("XW_DUR", time.Second))
	assert.Equal(t, 3*time.Second, GetDurationEnvOr("XW_DUR_SEC", time.Second))
	assert.Equal(t, time.Second, GetDurationEnvOr("XW_BAD", time.Second))
	assert.Equal(t, "fallback", GetEnvOr("XW_MISSING", "fallback"))
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	assert.Error(t, LoadEnv("test"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.test"), []byte("XW_FROM_FILE=hello\n"), 0o600))
	t.Setenv("XW_FROM_FILE", "")
	os.Unsetenv("XW_FROM_FILE")
	require.NoError(t, LoadEnv("test"))
	assert.Equal(t, "hello", GetEnv("XW_FROM_FILE"))
}

func TestInitDatabaseSQLite(t *testing.T) {
	type probe struct {
		ID   uint
		Name string
	}
	db, err := InitDatabase("sqlite", filepath.Join(t.TempDir(), "probe.db"), &probe{})
	require.NoError(t, err)
	require.NoError(t, db.Create(&probe{Name: "x"}).Error)

	var n int64
	require.NoError(t, db.Model(&probe{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
