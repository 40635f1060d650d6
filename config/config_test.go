package config

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, cnf Configuration) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "caravel*.json")
	require.NoError(t, err)
	require.NoError(t, json.NewEncoder(f).Encode(cnf))
	require.NoError(t, f.Close())
	return f.Name()
}

func TestInitConfigAppliesDefaults(t *testing.T) {
	file := writeTempConfig(t, Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost/caravel"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
	})

	require.NoError(t, InitConfig(file))

	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, "Caravel Server", cnf.ProjectName)
	assert.Equal(t, DEFAULT_PORT, cnf.Server.Port)
	assert.Equal(t, 5, cnf.WebhookRetry.MaxAttempts)
	assert.Equal(t, 30, cnf.WebhookRetry.BaseBackoffSeconds)
	assert.Equal(t, 50, cnf.Queue.RetrySweepLimit)
	assert.Equal(t, "*/5 * * * *", cnf.Queue.RetrySweepSchedule)
	assert.Equal(t, 15, cnf.Payment.TimeoutSeconds)
	assert.Equal(t, 10, cnf.Notification.Email.MaxPerRecipientPerHour)
}

func TestInitConfigRequiresDataSource(t *testing.T) {
	file := writeTempConfig(t, Configuration{
		Redis: RedisConfig{Dns: "localhost:6379"},
	})

	err := InitConfig(file)
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CARAVEL_WEBHOOK_MAX_ATTEMPTS", "8")
	file := writeTempConfig(t, Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost/caravel"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
	})

	require.NoError(t, InitConfig(file))
	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, 8, cnf.WebhookRetry.MaxAttempts)
}

func TestMockConfig(t *testing.T) {
	MockConfig(&Configuration{})
	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, 5, cnf.WebhookRetry.MaxAttempts)
	assert.Equal(t, 50, cnf.Queue.RetrySweepLimit)
}
