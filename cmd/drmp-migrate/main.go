package main

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"drmp-assignment/common/database"
	"drmp-assignment/common/logger"
	"drmp-assignment/internal/config"

	"go.uber.org/zap"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// 用法：drmp-migrate [migration_file.sql ...]
// 不带参数时执行内置 schema/ 下的全部脚本（按文件名排序）
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "drmp-migrate")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	scripts, err := loadScripts(os.Args[1:])
	if err != nil {
		log.Fatal("Failed to read migration files", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		log.Fatal("Cannot connect to database", zap.Error(err))
	}
	defer database.Close(db)

	for _, s := range scripts {
		stmts := splitStatements(s.body)
		err := database.WithTx(ctx, db, func(tx *sql.Tx) error {
			for i, stmt := range stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("statement %d/%d failed: %w\n%s", i+1, len(stmts), err, preview(stmt))
				}
			}
			return nil
		})
		if err != nil {
			log.Fatal("Migration failed", zap.String("file", s.name), zap.Error(err))
		}
		log.Info("Migration applied", zap.String("file", s.name), zap.Int("statements", len(stmts)))
	}
	log.Info("Migration completed", zap.Int("files", len(scripts)))
}

type script struct {
	name string
	body string
}

func loadScripts(paths []string) ([]script, error) {
	if len(paths) > 0 {
		out := make([]script, 0, len(paths))
		for _, p := range paths {
			b, err := os.ReadFile(p)
			if err != nil {
				return nil, err
			}
			out = append(out, script{name: p, body: string(b)})
		}
		return out, nil
	}

	names, err := fs.Glob(schemaFS, "schema/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	out := make([]script, 0, len(names))
	for _, n := range names {
		b, err := schemaFS.ReadFile(n)
		if err != nil {
			return nil, err
		}
		out = append(out, script{name: n, body: string(b)})
	}
	return out, nil
}

// splitStatements 按分号拆分，去掉整行注释和空语句
func splitStatements(content string) []string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		lines = append(lines, line)
	}

	var out []string
	for _, stmt := range strings.Split(strings.Join(lines, "\n"), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func preview(stmt string) string {
	if len(stmt) > 100 {
		return stmt[:100] + "..."
	}
	return stmt
}
