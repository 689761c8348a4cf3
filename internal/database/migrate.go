package database

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDirtySchema は前回のマイグレーションが途中で失敗し、手動での修復が必要な状態を表す。
var ErrDirtySchema = errors.New("database schema is dirty")

// MigrationResult はRunMigrationsの実行結果。
// バージョン0はマイグレーション未適用を表す。
type MigrationResult struct {
	FromVersion uint
	ToVersion   uint
}

// Applied は今回の実行で1件以上適用したかを返す。
func (r MigrationResult) Applied() bool {
	return r.ToVersion != r.FromVersion
}

// migrationSource は埋め込みのSQLファイルをマイグレーションソースとして開く。
func migrationSource() (source.Driver, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}
	return src, nil
}

// LatestVersion は埋め込まれたマイグレーションの最新バージョンを返す。
func LatestVersion() (uint, error) {
	src, err := migrationSource()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("no migrations embedded: %w", err)
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read migration after %d: %w", v, err)
		}
		v = next
	}
}

// NewMigrator はPostgreSQLに対するmigrateインスタンスを生成する。
// loggerを指定するとmigrateのログをslogへ出力する。
func NewMigrator(databaseURL string, logger *slog.Logger) (*migrate.Migrate, error) {
	src, err := migrationSource()
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	if logger != nil {
		m.Log = &migrateLogger{logger: logger}
	}
	return m, nil
}

// RunMigrations は未適用のマイグレーションをすべて適用し、適用前後のバージョンを返す。
// すでに最新の場合はエラーなしで返る。スキーマがdirtyの場合は適用せずErrDirtySchemaを返す。
func RunMigrations(databaseURL string, logger *slog.Logger) (MigrationResult, error) {
	m, err := NewMigrator(databaseURL, logger)
	if err != nil {
		return MigrationResult{}, err
	}
	defer m.Close()

	from, err := currentVersion(m)
	if err != nil {
		return MigrationResult{}, err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return MigrationResult{FromVersion: from}, fmt.Errorf("failed to run migrations: %w", err)
	}

	to, err := currentVersion(m)
	if err != nil {
		return MigrationResult{FromVersion: from}, err
	}
	return MigrationResult{FromVersion: from, ToVersion: to}, nil
}

// currentVersion は適用済みのバージョンを返す。未適用なら0。
func currentVersion(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("%w at version %d", ErrDirtySchema, v)
	}
	return v, nil
}

// migrateLogger はmigrate.Loggerをslogに橋渡しする。
type migrateLogger struct {
	logger *slog.Logger
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug("migrate", slog.String("detail", strings.TrimSpace(fmt.Sprintf(format, v...))))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
