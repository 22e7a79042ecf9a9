package backup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"XianwaiTTS/pkg/logger"
	"XianwaiTTS/pkg/scheduler"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const fileTimeLayout = "20060102_150405"

// Options 备份配置
type Options struct {
	Driver string
	DSN    string
	Dir    string
	// Keep 保留最近多少份，<=0 不清理
	Keep int
}

// Backup 数据库定时备份
type Backup struct {
	db   *gorm.DB
	opts Options
	now  func() time.Time
}

func New(db *gorm.DB, opts Options) *Backup {
	return &Backup{db: db, opts: opts, now: time.Now}
}

// Job 供 cron 调度
func (b *Backup) Job() scheduler.Job {
	return scheduler.FuncJob(func(ctx context.Context) {
		dst, err := b.Execute(ctx)
		if err != nil {
			logger.Warn("backup failed", zap.Error(err))
			return
		}
		logger.Info("backup completed", zap.String("file", dst))
	})
}

// Execute 按驱动执行一次备份，返回备份文件路径
func (b *Backup) Execute(ctx context.Context) (string, error) {
	if err := os.MkdirAll(b.opts.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	stamp := b.now().Format(fileTimeLayout)
	var (
		dst string
		err error
	)
	switch b.opts.Driver {
	case "", "sqlite", "sqlite3":
		dst = filepath.Join(b.opts.Dir, fmt.Sprintf("tts_backup_%s.db", stamp))
		err = BackupSQLiteDatabase(ctx, b.db, dst)
	case "mysql":
		dst = filepath.Join(b.opts.Dir, fmt.Sprintf("tts_backup_%s.sql", stamp))
		err = BackupMySQLDatabase(ctx, b.opts.DSN, dst)
	case "postgres", "postgresql", "pg":
		dst = filepath.Join(b.opts.Dir, fmt.Sprintf("tts_backup_%s.sql", stamp))
		err = BackupPostgresDatabase(ctx, b.opts.DSN, dst)
	default:
		return "", fmt.Errorf("unsupported DB_DRIVER: %s", b.opts.Driver)
	}
	if err != nil {
		return "", err
	}
	if b.opts.Keep > 0 {
		if err := prune(b.opts.Dir, b.opts.Keep); err != nil {
			logger.Warn("prune old backups failed", zap.Error(err))
		}
	}
	return dst, nil
}

// BackupSQLiteDatabase 用 VACUUM INTO 生成一致的快照，写入中的库也可以备份
func BackupSQLiteDatabase(ctx context.Context, db *gorm.DB, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("backup file already exists: %s", dst)
	}
	if err := db.WithContext(ctx).Exec("VACUUM INTO ?", dst).Error; err != nil {
		return fmt.Errorf("failed to backup SQLite database: %w", err)
	}
	return nil
}

// BackupMySQLDatabase 调用 mysqldump
func BackupMySQLDatabase(ctx context.Context, dsn, dst string) error {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fmt.Errorf("invalid mysql dsn: %w", err)
	}
	args := []string{"--single-transaction", "-u", cfg.User}
	if cfg.Net == "tcp" && cfg.Addr != "" {
		host, port, found := strings.Cut(cfg.Addr, ":")
		args = append(args, "-h", host)
		if found {
			args = append(args, "-P", port)
		}
	}
	args = append(args, cfg.DBName)

	cmd := exec.CommandContext(ctx, "mysqldump", args...)
	cmd.Env = append(os.Environ(), "MYSQL_PWD="+cfg.Passwd)
	return dumpTo(cmd, dst)
}

// BackupPostgresDatabase 调用 pg_dump，DSN 原样作为连接串
func BackupPostgresDatabase(ctx context.Context, dsn, dst string) error {
	cmd := exec.CommandContext(ctx, "pg_dump", "--dbname", dsn)
	return dumpTo(cmd, dst)
}

func dumpTo(cmd *exec.Cmd, dst string) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("error creating destination file: %w", err)
	}
	var stderr strings.Builder
	cmd.Stdout = f
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	closeErr := f.Close()
	if runErr != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("%s failed: %w: %s", filepath.Base(cmd.Path), runErr, strings.TrimSpace(stderr.String()))
	}
	return closeErr
}

// prune 只保留最新的 keep 份
func prune(dir string, keep int) error {
	matches, err := filepath.Glob(filepath.Join(dir, "tts_backup_*"))
	if err != nil {
		return err
	}
	if len(matches) <= keep {
		return nil
	}
	// 文件名带时间戳，字典序即时间序
	sort.Strings(matches)
	for _, p := range matches[:len(matches)-keep] {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}
