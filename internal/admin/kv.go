package admin

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// KVStore はブラウザごとの名前空間を持つキー・バリューストア。
// ブラウザのlocalStorageに相当する。
type KVStore interface {
	// Get は値を取得する。存在しない場合はokがfalseになる。
	Get(ctx context.Context, scope, key string) (value string, ok bool, err error)
	// Set は値を保存する。既存の値は上書きする。
	Set(ctx context.Context, scope, key, value string) error
	// Delete は値を削除する。存在しない場合も成功とする。
	Delete(ctx context.Context, scope, key string) error
}

// MemoryKV はプロセス内のKVStore実装。
type MemoryKV struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryKV はMemoryKVを生成する。
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string]string)}
}

func memoryKey(scope, key string) string {
	return scope + "\x00" + key
}

// Get は値を取得する。
func (m *MemoryKV) Get(_ context.Context, scope, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[memoryKey(scope, key)]
	return v, ok, nil
}

// Set は値を保存する。
func (m *MemoryKV) Set(_ context.Context, scope, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[memoryKey(scope, key)] = value
	return nil
}

// Delete は値を削除する。
func (m *MemoryKV) Delete(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, memoryKey(scope, key))
	return nil
}

// Len は保存されている値の数を返す。
func (m *MemoryKV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

const sqliteKVSchema = `
CREATE TABLE IF NOT EXISTS kv_entries (
	scope      TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	value      TEXT    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (scope, key)
)`

// SQLiteKV はSQLiteファイルに永続化するKVStore実装。
type SQLiteKV struct {
	db *sql.DB
}

// NewSQLiteKV はSQLiteKVを生成し、スキーマを初期化する。
// pathに":memory:"を指定するとメモリ上のDBを使用する。
func NewSQLiteKV(path string) (*SQLiteKV, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteKVSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize kv schema: %w", err)
	}

	return &SQLiteKV{db: db}, nil
}

// Close はDB接続を閉じる。
func (s *SQLiteKV) Close() error {
	return s.db.Close()
}

// Get は値を取得する。
func (s *SQLiteKV) Get(ctx context.Context, scope, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE scope = ? AND key = ?`,
		scope, key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get kv entry: %w", err)
	}
	return value, true, nil
}

// Set は値を保存する。
func (s *SQLiteKV) Set(ctx context.Context, scope, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_entries (scope, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (scope, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		scope, key, value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to set kv entry: %w", err)
	}
	return nil
}

// Delete は値を削除する。
func (s *SQLiteKV) Delete(ctx context.Context, scope, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE scope = ? AND key = ?`,
		scope, key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete kv entry: %w", err)
	}
	return nil
}

// compile-time interface check
var (
	_ KVStore = (*MemoryKV)(nil)
	_ KVStore = (*SQLiteKV)(nil)
)
