// Package projection builds the first-level identity projection: inbound
// domain events are routed to handlers that update the read model and
// commit resolved events in atomic batches.
package projection

import (
	"time"

	"github.com/iota-uz/profile-projection/modules/projection/dispatcher"
	"github.com/iota-uz/profile-projection/modules/projection/domain"
	"github.com/iota-uz/profile-projection/modules/projection/handlers"
	"github.com/iota-uz/profile-projection/modules/projection/infrastructure/persistence/inmem"
	"github.com/iota-uz/profile-projection/modules/projection/propagation"
	"github.com/iota-uz/profile-projection/modules/projection/saga"
	"github.com/iota-uz/profile-projection/modules/projection/tuples"
	"github.com/iota-uz/profile-projection/pkg/keylock"
)

type ModuleOptions struct {
	// Repository defaults to the in-memory store.
	Repository domain.Repository
	EventLog   saga.EventLog
	Builder    *tuples.Builder
	Locks      *keylock.Manager

	TerminalRetention time.Duration
	Clock             func() time.Time
}

type Module struct {
	Repository   domain.Repository
	Orchestrator *saga.Manager
	Engine       *propagation.Engine
	Handlers     *handlers.Context
	Dispatcher   *dispatcher.Dispatcher
}

func NewModule(opts *ModuleOptions) *Module {
	if opts == nil {
		opts = &ModuleOptions{}
	}
	repository := opts.Repository
	if repository == nil {
		repository = inmem.NewRepository()
	}
	eventLog := opts.EventLog
	if eventLog == nil {
		eventLog = saga.NewMemoryLog()
	}
	builder := opts.Builder
	if builder == nil {
		builder = tuples.NewBuilder()
	}

	var sagaOpts []saga.Option
	var dispatcherOpts []dispatcher.Option
	if opts.TerminalRetention > 0 {
		sagaOpts = append(sagaOpts, saga.WithTerminalRetention(opts.TerminalRetention))
	}
	if opts.Clock != nil {
		sagaOpts = append(sagaOpts, saga.WithClock(opts.Clock))
		dispatcherOpts = append(dispatcherOpts, dispatcher.WithClock(opts.Clock))
	}

	orchestrator := saga.NewManager(eventLog, sagaOpts...)
	engine := propagation.NewEngine(repository, builder)
	hc := handlers.NewContext(repository, orchestrator, engine, opts.Locks)
	dispatcherOpts = append(dispatcherOpts, dispatcher.WithScope(hc.Atomic))
	return &Module{
		Repository:   repository,
		Orchestrator: orchestrator,
		Engine:       engine,
		Handlers:     hc,
		Dispatcher:   dispatcher.New(hc.Registry(), repository, dispatcherOpts...),
	}
}

func (m *Module) Name() string {
	return "projection"
}

