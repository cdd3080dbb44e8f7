package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iota-uz/profile-projection/modules/projection"
	"github.com/iota-uz/profile-projection/modules/projection/domain/events"
	"github.com/iota-uz/profile-projection/modules/projection/saga"
	"github.com/iota-uz/profile-projection/pkg/composables"
	"github.com/iota-uz/profile-projection/pkg/configuration"
	"github.com/iota-uz/profile-projection/pkg/logging"
	"github.com/iota-uz/profile-projection/pkg/repo"
)

type outputLine struct {
	Event        int                  `json:"event"`
	BatchID      uuid.UUID            `json:"batch_id"`
	TargetStream string               `json:"target_stream"`
	Type         events.ResolvedType  `json:"type"`
	Payload      events.ResolvedEvent `json:"payload"`
}

type errorLine struct {
	Event int    `json:"event"`
	Type  string `json:"type"`
	Error string `json:"error"`
}

type replayOptions struct {
	continueOnError bool
	logLevel        string
}

func newRunCmd() *cobra.Command {
	var (
		file string
		opts replayOptions
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Replay a fixture and print the resolved events as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			return replay(cmd.Context(), f, cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Fixture file (YAML or JSON)")
	cmd.Flags().BoolVar(&opts.continueOnError, "continue-on-error", false, "Report failed events and keep going")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "silent", "silent|error|warn|info|debug")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func replay(ctx context.Context, in io.Reader, out io.Writer, opts replayOptions) error {
	evts, err := readFixture(in)
	if err != nil {
		return err
	}

	logger := logging.ConsoleLogger(configuration.ParseLogLevel(opts.logLevel))
	logger.SetOutput(os.Stderr)
	ctx = composables.WithLogger(ctx, logrus.NewEntry(logger))

	log := saga.NewMemoryLog()
	module := projection.NewModule(&projection.ModuleOptions{EventLog: log})
	enc := json.NewEncoder(out)

	for i, e := range evts {
		before := len(log.Batches())
		if err := module.Dispatcher.DispatchRaw(ctx, e.Type, e.Payload, e.Header, repo.Detached{}); err != nil {
			if !opts.continueOnError {
				return fmt.Errorf("event %d (%s): %w", i+1, e.Type, err)
			}
			if encErr := enc.Encode(errorLine{Event: i + 1, Type: string(e.Type), Error: err.Error()}); encErr != nil {
				return encErr
			}
			continue
		}
		for _, b := range log.Batches()[before:] {
			for _, t := range b.Tuples {
				line := outputLine{
					Event:        i + 1,
					BatchID:      b.BatchID,
					TargetStream: t.TargetStream,
					Type:         t.Event.ResolvedType(),
					Payload:      t.Event,
				}
				if err := enc.Encode(line); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func newTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the inbound event types the projection handles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, t := range projection.NewModule(nil).Dispatcher.Types() {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), t); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
