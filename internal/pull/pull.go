// Package pull runs one extract: load the configuration, connect, read the
// query, execute it, export the result and close the session.
package pull

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/gerhard-ee/datapull/internal/config"
	"github.com/gerhard-ee/datapull/internal/database"
	"github.com/gerhard-ee/datapull/internal/export"
	"github.com/gerhard-ee/datapull/internal/query"
	"github.com/gerhard-ee/datapull/internal/state"
)

// Kind classifies the stage a run failed in
type Kind int

const (
	KindNone Kind = iota
	KindConfig
	KindQuerySource
	KindConnection
	KindExecution
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConfig:
		return "config"
	case KindQuerySource:
		return "query_source"
	case KindConnection:
		return "connection"
	case KindExecution:
		return "execution"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrOutputLocked is returned when another run holds the lock on the output path
var ErrOutputLocked = errors.New("output is locked by another run")

// lockTTL bounds how long a crashed run can hold an output lock
const lockTTL = time.Hour

// Result is the outcome of a run
type Result struct {
	RunID  string
	Kind   Kind
	Err    error
	Rows   int
	Output string
}

// OK reports whether the run succeeded
func (r Result) OK() bool {
	return r.Err == nil
}

// Options are per-run overrides. Output and Format replace the configured
// values when set. Params are bound positionally by the driver.
type Options struct {
	ConfigPath string
	Output     string
	Format     string
	Params     []interface{}
}

// Runner executes runs. All fields are optional: a nil Connector selects one
// from the configured driver, a nil States records nothing, and an empty
// BaseDir resolves SQL files next to the executable.
type Runner struct {
	Connector database.Connector
	States    state.Manager
	Logger    *slog.Logger
	BaseDir   string
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return r.Logger
}

// Run performs one extract. The session, once opened, is closed on every
// path. Failures are reported in the result and never panic.
func (r *Runner) Run(ctx context.Context, opts Options) Result {
	res := Result{RunID: uuid.NewString()}
	logger := r.logger().With(slog.String("run_id", res.RunID))

	fail := func(kind Kind, msg string, err error) Result {
		logger.Error(msg, slog.String("kind", kind.String()), slog.Any("err", err))
		res.Kind = kind
		res.Err = err
		return res
	}

	cfg, err := config.Load(opts.ConfigPath, logger)
	if err != nil {
		return fail(KindConfig, "Failed to load configuration", err)
	}

	output := cfg.Queries.Output
	if opts.Output != "" {
		output = opts.Output
	}
	format := cfg.Queries.Format
	if opts.Format != "" {
		format = opts.Format
	}
	res.Output = output

	if err := export.CheckFormat(format); err != nil {
		return fail(KindConfig, "Invalid output format", err)
	}

	connector := r.Connector
	if connector == nil {
		connector, err = database.NewConnector(cfg.Connection.Driver, logger)
		if err != nil {
			return fail(KindConfig, "Invalid driver", err)
		}
	}

	baseDir, baseErr := r.baseDir()

	rec := &recorder{states: r.States, logger: logger, state: &state.State{
		JobID:      res.RunID,
		ConfigPath: cfg.Path,
		QueryFile:  query.ResolvePath(cfg.Queries.SQLQuery, baseDir),
		Output:     output,
		Format:     format,
		Driver:     cfg.Connection.Driver,
	}}
	rec.start(ctx)

	finish := func(kind Kind, msg string, err error) Result {
		res = fail(kind, msg, err)
		rec.fail(ctx, err)
		return res
	}

	unlock, err := r.lockOutput(ctx, output)
	if err != nil {
		return finish(KindExecution, "Failed to lock output", err)
	}
	defer unlock()

	session, err := connector.Connect(ctx, cfg.Connection)
	if err != nil {
		return finish(KindConnection, "Error connecting to database", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("Failed to close session", slog.Any("err", err))
		}
	}()

	if baseErr != nil {
		return finish(KindQuerySource, "Failed to resolve SQL file", baseErr)
	}
	q, err := query.Load(cfg.Queries, baseDir, logger)
	if err != nil {
		return finish(KindQuerySource, "Failed to read SQL file", err)
	}

	logger.Info("Executing query", slog.String("query", q.Text), slog.Int("params", len(opts.Params)))
	t, err := session.Query(ctx, q.Text, opts.Params...)
	if err != nil {
		return finish(KindExecution, "Error during query execution", err)
	}
	logger.Info("Query executed successfully")

	res.Rows = t.Len()
	logger.Info(fmt.Sprintf("Fetched %d rows", res.Rows), slog.Int("rows", res.Rows))

	if err := export.Write(output, format, t); err != nil {
		return finish(KindExecution, "Error writing output", err)
	}
	logger.Info("Data successfully written", slog.String("output", output), slog.String("format", format))

	rec.complete(ctx, res.Rows)
	return res
}

func (r *Runner) baseDir() (string, error) {
	if r.BaseDir != "" {
		return r.BaseDir, nil
	}
	return query.BaseDir()
}

// lockOutput takes the output lock when a state manager is configured
func (r *Runner) lockOutput(ctx context.Context, output string) (func(), error) {
	if r.States == nil {
		return func() {}, nil
	}

	abs, err := filepath.Abs(output)
	if err != nil {
		abs = output
	}

	key := state.LockKey(abs)
	ok, err := r.States.LockState(ctx, key, lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOutputLocked, output)
	}

	return func() {
		// The run context may already be cancelled; the lock still has to go.
		if err := r.States.UnlockState(context.WithoutCancel(ctx), key); err != nil {
			r.logger().Warn("Failed to release output lock", slog.String("output", output), slog.Any("err", err))
		}
	}, nil
}
