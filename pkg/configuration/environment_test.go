package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "go.mod"), []byte("module example.com/test\n\ngo 1.22\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmp, ".env.local"), []byte("PROJECTION_TEST_ENV_LOAD=ok\n"), 0o644))

	sub := filepath.Join(tmp, "pkg", "outbox")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	t.Chdir(sub)
	t.Setenv("PROJECTION_TEST_ENV_LOAD", "")
	require.NoError(t, os.Unsetenv("PROJECTION_TEST_ENV_LOAD"))

	n, err := LoadEnv([]string{".env", ".env.local"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "ok", os.Getenv("PROJECTION_TEST_ENV_LOAD"))
}

func TestLoadEnv_NoFiles(t *testing.T) {
	t.Chdir(t.TempDir())
	n, err := LoadEnv([]string{".env.missing"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestParse_Defaults(t *testing.T) {
	c := &Configuration{}
	require.NoError(t, c.parse())

	assert.Equal(t, EventLogOutbox, c.Projection.EventLog)
	assert.Equal(t, pgx.Identifier{"projection_inbound_outbox"}, c.Projection.InboundIdentifier())
	assert.Equal(t, pgx.Identifier{"projection_resolved_outbox"}, c.Projection.ResolvedIdentifier())
	assert.Equal(t, 10*time.Minute, c.Projection.TerminalRetention)
	assert.Equal(t, "localhost:3201", c.OpsAddress)
	assert.Contains(t, c.Database.Opts, "dbname=profile_projection")
}

func TestParse_EventLogSelection(t *testing.T) {
	t.Setenv("PROJECTION_EVENT_LOG", " Redis ")
	t.Setenv("PROJECTION_RESOLVED_TABLE", "events.resolved")
	c := &Configuration{}
	require.NoError(t, c.parse())
	assert.Equal(t, EventLogRedis, c.Projection.EventLog)
	assert.Equal(t, pgx.Identifier{"events", "resolved"}, c.Projection.ResolvedIdentifier())
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown event log":  {"PROJECTION_EVENT_LOG": "kafka"},
		"bad table":          {"PROJECTION_INBOUND_TABLE": "a.b.c"},
		"same tables":        {"PROJECTION_INBOUND_TABLE": "t", "PROJECTION_RESOLVED_TABLE": "t"},
		"negative retention": {"SAGA_TERMINAL_RETENTION": "-1m"},
		"redis without url":  {"PROJECTION_EVENT_LOG": "redis", "REDIS_URL": " "},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			require.Error(t, (&Configuration{}).parse())
		})
	}
}

func TestOutboxOptions_Mapping(t *testing.T) {
	o := OutboxOptions{
		RelayBatchSize:       10,
		RelayMaxAttempts:     5,
		RelaySingleActive:    true,
		CleanerEnabled:       true,
		CleanerDeadRetention: time.Hour,
	}
	entry := logrus.NewEntry(logrus.New())

	relay := o.RelayOptions(entry)
	assert.Equal(t, 10, relay.BatchSize)
	assert.True(t, relay.SingleActive)
	assert.Same(t, entry, relay.Logger)

	cleaner := o.CleanerOptions(entry)
	assert.Equal(t, 5, cleaner.DeadAttemptsThreshold)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLogLevel("debug"))
	assert.Equal(t, logrus.PanicLevel, ParseLogLevel("silent"))
	assert.Equal(t, logrus.ErrorLevel, ParseLogLevel("verbose"))
}

func TestOpsGuardEnforced(t *testing.T) {
	c := &Configuration{GoAppEnvironment: "development", OpsGuard: OpsGuardOptions{Enabled: true}}
	assert.False(t, c.OpsGuardEnforced())

	c.GoAppEnvironment = Production
	assert.True(t, c.OpsGuardEnforced())

	c.OpsGuard.Enabled = false
	assert.False(t, c.OpsGuardEnforced())
}
