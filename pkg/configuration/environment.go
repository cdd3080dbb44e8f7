package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/profile-projection/pkg/logging"
	"github.com/iota-uz/profile-projection/pkg/outbox"
)

const Production = "production"

const (
	EventLogOutbox = "outbox"
	EventLogRedis  = "redis"
)

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the env files found in the working directory or, failing
// that, in the nearest parent holding a go.mod. It returns how many were loaded.
func LoadEnv(envFiles []string) (int, error) {
	existing := existingFiles("", envFiles)
	if len(existing) == 0 {
		if root, ok := moduleRoot(); ok {
			existing = existingFiles(root, envFiles)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func existingFiles(dir string, files []string) []string {
	out := make([]string, 0, len(files))
	for _, file := range files {
		path := file
		if dir != "" {
			path = filepath.Join(dir, file)
		}
		if fs.FileExists(path) {
			out = append(out, path)
		}
	}
	return out
}

func moduleRoot() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if fs.FileExists(filepath.Join(dir, "go.mod")) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"profile_projection"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"profile-projection"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"true"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/metrics"`
}

type OutboxOptions struct {
	RelayEnabled         bool          `env:"OUTBOX_RELAY_ENABLED" envDefault:"true"`
	RelayPollInterval    time.Duration `env:"OUTBOX_RELAY_POLL_INTERVAL" envDefault:"1s"`
	RelayBatchSize       int           `env:"OUTBOX_RELAY_BATCH_SIZE" envDefault:"100"`
	RelayLockTTL         time.Duration `env:"OUTBOX_RELAY_LOCK_TTL" envDefault:"60s"`
	RelayMaxAttempts     int           `env:"OUTBOX_RELAY_MAX_ATTEMPTS" envDefault:"25"`
	RelaySingleActive    bool          `env:"OUTBOX_RELAY_SINGLE_ACTIVE" envDefault:"true"`
	RelayDispatchTimeout time.Duration `env:"OUTBOX_RELAY_DISPATCH_TIMEOUT" envDefault:"30s"`

	LastErrorMaxBytes int `env:"OUTBOX_LAST_ERROR_MAX_BYTES" envDefault:"2048"`

	CleanerEnabled       bool          `env:"OUTBOX_CLEANER_ENABLED" envDefault:"true"`
	CleanerInterval      time.Duration `env:"OUTBOX_CLEANER_INTERVAL" envDefault:"1m"`
	CleanerRetention     time.Duration `env:"OUTBOX_CLEANER_RETENTION" envDefault:"168h"`
	CleanerDeadRetention time.Duration `env:"OUTBOX_CLEANER_DEAD_RETENTION" envDefault:"0"`
}

// RelayOptions maps the env settings onto relay options.
func (o OutboxOptions) RelayOptions(logger *logrus.Entry) outbox.RelayOptions {
	return outbox.RelayOptions{
		PollInterval:    o.RelayPollInterval,
		BatchSize:       o.RelayBatchSize,
		LockTTL:         o.RelayLockTTL,
		MaxAttempts:     o.RelayMaxAttempts,
		SingleActive:    o.RelaySingleActive,
		LastErrorMaxLen: o.LastErrorMaxBytes,
		DispatchTimeout: o.RelayDispatchTimeout,
		Logger:          logger,
	}
}

func (o OutboxOptions) CleanerOptions(logger *logrus.Entry) outbox.CleanerOptions {
	opts := outbox.CleanerOptions{
		Enabled:       o.CleanerEnabled,
		Interval:      o.CleanerInterval,
		Retention:     o.CleanerRetention,
		DeadRetention: o.CleanerDeadRetention,
		Logger:        logger,
	}
	if opts.DeadRetention > 0 {
		opts.DeadAttemptsThreshold = o.RelayMaxAttempts
	}
	return opts
}

type OpsGuardOptions struct {
	Enabled       bool   `env:"OPS_GUARD_ENABLED" envDefault:"true"`
	CIDRs         string `env:"OPS_GUARD_CIDRS" envDefault:""`
	Token         string `env:"OPS_GUARD_TOKEN" envDefault:""`
	BasicAuthUser string `env:"OPS_GUARD_BASIC_AUTH_USER" envDefault:""`
	BasicAuthPass string `env:"OPS_GUARD_BASIC_AUTH_PASS" envDefault:""`
	RealIPHeader  string `env:"REAL_IP_HEADER" envDefault:"X-Real-IP"`
}

type ProjectionOptions struct {
	InboundTable  string `env:"PROJECTION_INBOUND_TABLE" envDefault:"projection_inbound_outbox"`
	ResolvedTable string `env:"PROJECTION_RESOLVED_TABLE" envDefault:"projection_resolved_outbox"`
	// EventLog selects where committed batches go: outbox or redis.
	EventLog          string `env:"PROJECTION_EVENT_LOG" envDefault:"outbox"`
	RedisStreamPrefix string `env:"PROJECTION_REDIS_STREAM_PREFIX" envDefault:"projection:"`
	RedisStreamMaxLen int64  `env:"PROJECTION_REDIS_STREAM_MAXLEN" envDefault:"0"`
	// ForwardToRedis copies relayed resolved events to Redis streams.
	ForwardToRedis    bool          `env:"PROJECTION_FORWARD_REDIS" envDefault:"false"`
	TerminalRetention time.Duration `env:"SAGA_TERMINAL_RETENTION" envDefault:"10m"`

	inbound  pgx.Identifier
	resolved pgx.Identifier
}

func (p *ProjectionOptions) InboundIdentifier() pgx.Identifier {
	return p.inbound
}

func (p *ProjectionOptions) ResolvedIdentifier() pgx.Identifier {
	return p.resolved
}

func (p *ProjectionOptions) Validate() error {
	mode := strings.ToLower(strings.TrimSpace(p.EventLog))
	switch mode {
	case EventLogOutbox, EventLogRedis:
	default:
		return fmt.Errorf("invalid PROJECTION_EVENT_LOG=%q (expected outbox|redis)", p.EventLog)
	}
	p.EventLog = mode

	var err error
	if p.inbound, err = outbox.ParseIdentifier(p.InboundTable); err != nil {
		return fmt.Errorf("PROJECTION_INBOUND_TABLE: %w", err)
	}
	if p.resolved, err = outbox.ParseIdentifier(p.ResolvedTable); err != nil {
		return fmt.Errorf("PROJECTION_RESOLVED_TABLE: %w", err)
	}
	if outbox.TableLabel(p.inbound) == outbox.TableLabel(p.resolved) {
		return fmt.Errorf("inbound and resolved tables must differ, both are %q", p.InboundTable)
	}
	if p.TerminalRetention < 0 {
		return fmt.Errorf("SAGA_TERMINAL_RETENTION must be non-negative, got %s", p.TerminalRetention)
	}
	return nil
}

type Configuration struct {
	Database      DatabaseOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	Outbox        OutboxOptions
	Projection    ProjectionOptions
	OpsGuard      OpsGuardOptions

	RedisURL         string `env:"REDIS_URL" envDefault:"localhost:6379"`
	OpsPort          int    `env:"OPS_PORT" envDefault:"3201"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:"./logs/projection.log"`
	OpsAddress       string `env:"-"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

// OpsGuardEnforced reports whether ops routes need credentials. The guard
// only applies in production.
func (c *Configuration) OpsGuardEnforced() bool {
	return c.GoAppEnvironment == Production && c.OpsGuard.Enabled
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	return ParseLogLevel(c.LogLevel)
}

func ParseLogLevel(level string) logrus.Level {
	switch level {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := c.parse(); err != nil {
		return err
	}

	if c.GoAppEnvironment == Production {
		f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
		if err != nil {
			return err
		}
		c.logFile = f
		c.logger = logger
	} else {
		c.logger = logging.ConsoleLogger(c.LogrusLogLevel())
	}
	return nil
}

// parse reads the environment into c and validates it.
func (c *Configuration) parse() error {
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.Projection.Validate(); err != nil {
		return fmt.Errorf("projection configuration error: %w", err)
	}
	needsRedis := c.Projection.EventLog == EventLogRedis || c.Projection.ForwardToRedis
	if needsRedis && strings.TrimSpace(c.RedisURL) == "" {
		return fmt.Errorf("REDIS_URL is required when PROJECTION_EVENT_LOG=redis or PROJECTION_FORWARD_REDIS=true")
	}

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.OpsAddress = fmt.Sprintf(":%d", c.OpsPort)
	} else {
		c.OpsAddress = fmt.Sprintf("localhost:%d", c.OpsPort)
	}
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
