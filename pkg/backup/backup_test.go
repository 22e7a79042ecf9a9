package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"XianwaiTTS/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func TestExecuteSQLite(t *testing.T) {
	dir := t.TempDir()
	db, err := util.InitDatabase("sqlite", filepath.Join(dir, "src.db"), &row{})
	require.NoError(t, err)
	require.NoError(t, db.Create(&row{Name: "hello"}).Error)

	b := New(db, Options{Driver: "sqlite", Dir: filepath.Join(dir, "backups")})
	b.now = func() time.Time { return time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC) }

	dst, err := b.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tts_backup_20240501_080000.db", filepath.Base(dst))

	copyDB, err := util.InitDatabase("sqlite", dst)
	require.NoError(t, err)
	var got []row
	require.NoError(t, copyDB.Find(&got).Error)
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Name)

	// 同一秒再次备份不会覆盖已有文件
	_, err = b.Execute(context.Background())
	assert.Error(t, err)
}

func TestExecuteKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	db, err := util.InitDatabase("sqlite", filepath.Join(dir, "src.db"), &row{})
	require.NoError(t, err)

	out := filepath.Join(dir, "backups")
	b := New(db, Options{Driver: "sqlite", Dir: out, Keep: 2})
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		at := start.Add(time.Duration(i) * time.Minute)
		b.now = func() time.Time { return at }
		_, err := b.Execute(context.Background())
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "tts_backup_20240501_080200.db", entries[0].Name())
	assert.Equal(t, "tts_backup_20240501_080300.db", entries[1].Name())
}

func TestExecuteUnsupportedDriver(t *testing.T) {
	b := New(nil, Options{Driver: "oracle", Dir: t.TempDir()})
	_, err := b.Execute(context.Background())
	assert.ErrorContains(t, err, "unsupported DB_DRIVER")
}

func TestBackupMySQLRejectsBadDSN(t *testing.T) {
	err := BackupMySQLDatabase(context.Background(), "::not a dsn", filepath.Join(t.TempDir(), "x.sql"))
	assert.ErrorContains(t, err, "invalid mysql dsn")
}
