package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://u:p@localhost:5432/leads")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("WORKERPOOLS_SIDEEFFECTS_POOLSIZE", "4")
	t.Setenv("NATS_LEADS_NAKBASEDELAY", "3s")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@localhost:5432/leads", cfg.Database.PostgresDSN)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.WorkerPools.SideEffects.PoolSize)
	assert.Equal(t, 3*time.Second, cfg.NATS.Leads.NakBaseDelay)
	assert.Equal(t, []string{"v1.leads.submissions", "v1.leads.status"}, cfg.NATS.Leads.SubjectList)
	assert.Equal(t, "v1.leads.notifications", cfg.NATS.NotificationSubject)
	assert.Equal(t, "US", cfg.Notifications.DefaultRegion)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Minute, cfg.Cache.OrganizationTTL)
	assert.Equal(t, "v1.organizations.changed.>", cfg.Cache.InvalidationSubject)
	assert.True(t, cfg.NATS.DLQWorker.Enabled)
	assert.Equal(t, 3, cfg.NATS.DLQWorker.ReplayAttempts)
}

func TestLoadConfig_RedisURLEnablesCache(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/leads")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "redis://cache:6379/1", cfg.Cache.RedisURL)
}

func TestLoadConfig_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("server:\n  port: 9090\ncache:\n  organizationTTL: 90s\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.yaml"), yaml, 0o600))
	t.Setenv("POSTGRES_DSN", "postgres://localhost/leads")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Cache.OrganizationTTL)
}

func TestLoadConfig_RequiresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("DATABASE_POSTGRESDSN", "")

	_, err := LoadConfig(t.TempDir())
	assert.ErrorContains(t, err, "postgresDSN")
}
