package core

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/iyuangang/sqlrun/internal/config"
	"github.com/iyuangang/sqlrun/internal/db"
)

// createTestDB 创建包含 USERS 和 EMPTY_TABLE 的 sqlite 数据库，
// 每次更新 USERS 时触发器向 AUDIT 写入两行
func createTestDB(t *testing.T) *config.DatabaseConfig {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	seed, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer seed.Close()

	for _, stmt := range []string{
		"CREATE TABLE USERS (ID INTEGER PRIMARY KEY, NAME TEXT, NOTE TEXT)",
		"INSERT INTO USERS (ID, NAME, NOTE) VALUES (1, 'Alice', NULL), (2, 'Bob', 'a\tb')",
		"CREATE TABLE EMPTY_TABLE (A INTEGER, B TEXT)",
		"CREATE TABLE AUDIT (USER_ID INTEGER, NAME TEXT)",
		"CREATE TRIGGER USERS_AUDIT AFTER UPDATE ON USERS BEGIN " +
			"INSERT INTO AUDIT VALUES (OLD.ID, OLD.NAME); INSERT INTO AUDIT VALUES (NEW.ID, NEW.NAME); END",
	} {
		_, err := seed.Exec(stmt)
		require.NoError(t, err, stmt)
	}

	return &config.DatabaseConfig{Name: "test", Driver: "sqlite3", Database: path}
}

func openTestSession(t *testing.T, cfg *config.DatabaseConfig) *db.Session {
	t.Helper()
	s, err := db.NewProvider(db.DefaultDialects(), nil).Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sqliteOpener(cfg *config.DatabaseConfig) OpenFunc {
	provider := db.NewProvider(db.DefaultDialects(), nil)
	return func(ctx context.Context) (Session, error) {
		s, err := provider.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
