package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
jwt:
  secret: s3cret
database:
  driver: memory
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.IdentityCacheTTL)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 8, cfg.Scheduling.OpenHour)
	assert.Equal(t, 17, cfg.Scheduling.CloseHour)
	assert.Equal(t, 3, cfg.Notifications.MaxAttempts)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, time.Hour, cfg.Worker.CompletionGrace)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
jwt:
  secret: from-file
database:
  host: db.internal
  max_open_conns: 10
`)
	t.Setenv("CAREBOOK_JWT_SECRET", "from-env")
	t.Setenv("CAREBOOK_SERVER_PORT", "9100")
	t.Setenv("CAREBOOK_DATABASE_MAX_OPEN_CONNS", "40")
	t.Setenv("CAREBOOK_SCHEDULING_TIMEZONE", "Europe/Paris")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 40, cfg.Database.MaxOpenConns)
	assert.Equal(t, "Europe/Paris", cfg.Scheduling.Timezone)
}

func TestLoadValidates(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing secret", "database:\n  driver: memory\n", "jwt.secret"},
		{"unknown driver", "jwt:\n  secret: x\ndatabase:\n  driver: mysql\n", "database.driver"},
		{"inverted hours", "jwt:\n  secret: x\nscheduling:\n  open_hour: 18\n  close_hour: 9\n", "open_hour"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}
