package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormLoggerConfigFrom(t *testing.T) {
	cases := map[string]gormlogger.LogLevel{
		"silent":  gormlogger.Silent,
		"ERROR":   gormlogger.Error,
		"warn":    gormlogger.Warn,
		"debug":   gormlogger.Info,
		"verbose": gormlogger.Warn,
	}
	for in, want := range cases {
		assert.Equal(t, want, GormLoggerConfigFrom(in, time.Second).Level, in)
	}
	assert.Equal(t, 200*time.Millisecond, GormLoggerConfigFrom("warn", 0).SlowThreshold)
}

func TestSQLOperation(t *testing.T) {
	assert.Equal(t, "SELECT", sqlOperation(`SELECT * FROM "invoices"`))
	assert.Equal(t, "UPDATE", sqlOperation("  update invoices set status = ?"))
	assert.Equal(t, "OTHER", sqlOperation("PRAGMA foreign_keys"))
	assert.Equal(t, "OTHER", sqlOperation(""))
}
