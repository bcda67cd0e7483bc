package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"APP_ADDR", "STORE", "SQLITE_PATH", "MAX_ATTEMPTS", "LOCK_TTL", "CORS_ORIGINS"} {
		t.Setenv(k, "")
	}
	c := FromEnv()

	assert.Equal(t, ":8080", c.Addr)
	assert.Equal(t, StoreSQLite, c.Store)
	assert.Equal(t, "payroll.db", c.SQLitePath)
	assert.Equal(t, 10, c.MaxAttempts)
	assert.Equal(t, 10*time.Second, c.LockTTL)
	assert.Len(t, c.CORSOrigins, 2)
	assert.NoError(t, c.Validate())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("STORE", "mongo")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("MAX_ATTEMPTS", "3")
	t.Setenv("LOCK_TTL", "2s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")

	c := FromEnv()
	assert.Equal(t, StoreMongo, c.Store)
	assert.Equal(t, 3, c.MaxAttempts)
	assert.Equal(t, 2*time.Second, c.LockTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.CORSOrigins)
	assert.NoError(t, c.Validate())
}

func TestFromEnv_BadNumbersFallBack(t *testing.T) {
	t.Setenv("MAX_ATTEMPTS", "many")
	t.Setenv("LOCK_TTL", "soon")
	c := FromEnv()
	assert.Equal(t, 10, c.MaxAttempts)
	assert.Equal(t, 10*time.Second, c.LockTTL)
}

func TestValidate(t *testing.T) {
	base := Config{Store: StoreMemory, MaxAttempts: 1, LogLevel: "info"}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown store", func(c *Config) { c.Store = "postgres" }},
		{"mongo without uri", func(c *Config) { c.Store = StoreMongo }},
		{"sqlite without path", func(c *Config) { c.Store = StoreSQLite }},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"redis without ttl", func(c *Config) { c.RedisAddr = "localhost:6379" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoad_DotEnvDoesNotOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("STORE=memory\nSEED_SCENARIO=payroll-basics\n"), 0o600))

	t.Setenv("STORE", "sqlite")
	t.Setenv("SEED_SCENARIO", "")
	os.Unsetenv("SEED_SCENARIO")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StoreSQLite, c.Store)
	assert.Equal(t, "payroll-basics", c.SeedScenario)
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logg, err := NewLogger("warn", &buf)
	require.NoError(t, err)

	logg.Info("hidden")
	LogError(logg, "api", "ChangeLeaveStatus", "save", map[string]string{"employee_id": "e1"}, errors.New("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "boom", entry["msg"])
	assert.Equal(t, "api", entry["module"])
	assert.Equal(t, "error", entry["level"])

	_, err = NewLogger("chatty", nil)
	assert.Error(t, err)
}
