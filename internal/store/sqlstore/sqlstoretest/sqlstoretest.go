// Package sqlstoretest opens migrated in-memory SQLite stores for tests.
package sqlstoretest

import (
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/portal/internal/store/sqlstore"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New returns a store backed by a private shared-cache memory database.
// A single connection serializes transactions the same way row locks do.
func New(t testing.TB) *sqlstore.Store {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	st := sqlstore.New(conn, zap.NewNop())
	if err := st.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}
