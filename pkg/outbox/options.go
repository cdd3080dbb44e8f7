package outbox

import (
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

type RelayOptions struct {
	PollInterval time.Duration
	BatchSize    int
	LockTTL      time.Duration
	MaxAttempts  int
	// SingleActive elects one relay per table through a Postgres advisory
	// lock. Required when delivery order matters across instances.
	SingleActive    bool
	MaxBackoff      time.Duration
	JitterMax       time.Duration
	LastErrorMaxLen int
	DispatchTimeout time.Duration

	ObserveQueueDepthEvery time.Duration

	Logger *logrus.Entry
	Rand   *rand.Rand
}

func (o *RelayOptions) setDefaults() {
	setDefault(&o.PollInterval, time.Second)
	setDefault(&o.BatchSize, 100)
	setDefault(&o.LockTTL, time.Minute)
	setDefault(&o.MaxAttempts, 25)
	setDefault(&o.MaxBackoff, time.Minute)
	setDefault(&o.JitterMax, 200*time.Millisecond)
	setDefault(&o.LastErrorMaxLen, 2048)
	setDefault(&o.DispatchTimeout, 30*time.Second)
	setDefault(&o.ObserveQueueDepthEvery, 10*time.Second)
	if o.Logger == nil {
		o.Logger = nopLogger()
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec
	}
}

type CleanerOptions struct {
	Enabled   bool
	Interval  time.Duration
	Retention time.Duration
	// DeadRetention, when set, also removes messages that exhausted
	// DeadAttemptsThreshold attempts and are older than it.
	DeadRetention         time.Duration
	DeadAttemptsThreshold int

	Logger *logrus.Entry
}

func (o *CleanerOptions) setDefaults() {
	setDefault(&o.Interval, time.Minute)
	setDefault(&o.Retention, 7*24*time.Hour)
	if o.Logger == nil {
		o.Logger = nopLogger()
	}
}

func setDefault[T comparable](field *T, value T) {
	var zero T
	if *field == zero {
		*field = value
	}
}

func nopLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}
