package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "DB_TYPE", "MAX_ROUNDS", "FETCH_TIMEOUT", "EXPORT_ENABLED"} {
		t.Setenv(k, "")
	}
	c := FromEnv()
	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, "sqlite", c.DBType)
	assert.Equal(t, 3, c.MaxRounds)
	assert.Equal(t, 10*time.Second, c.FetchTimeout)
	assert.False(t, c.ExportEnabled)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DB_TYPE", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://royale@localhost/royale")
	t.Setenv("MAX_ROUNDS", "5")
	t.Setenv("FETCH_TIMEOUT", "3s")
	t.Setenv("TOKEN_TTL", "bogus")

	c := FromEnv()
	assert.Equal(t, "postgres", c.DBType)
	assert.Equal(t, "postgres://royale@localhost/royale", c.DSN())
	assert.Equal(t, 5, c.MaxRounds)
	assert.Equal(t, 3*time.Second, c.FetchTimeout)
	assert.Equal(t, 24*time.Hour, c.TokenTTL)
}

func TestLoadReadsDotEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(file, []byte("ROYALE_TEST_PORT_FROM_FILE=1\nDB_PATH=/tmp/from-dotenv.db\n"), 0o644))
	t.Setenv("DB_TYPE", "sqlite")
	t.Setenv("DB_PATH", "")
	os.Unsetenv("DB_PATH")
	t.Cleanup(func() { os.Unsetenv("ROYALE_TEST_PORT_FROM_FILE") })

	c := Load(file)
	assert.Equal(t, "/tmp/from-dotenv.db", c.DSN())
	assert.Equal(t, "1", os.Getenv("ROYALE_TEST_PORT_FROM_FILE"))
}
