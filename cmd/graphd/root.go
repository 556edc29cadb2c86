package main

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wbrown/janus-graphd/graphd/annotations"
	"github.com/wbrown/janus-graphd/graphd/config"
	"github.com/wbrown/janus-graphd/graphd/iterator"
	"github.com/wbrown/janus-graphd/graphd/storage"

	// cursor kinds
	_ "github.com/wbrown/janus-graphd/graphd/isa"
	_ "github.com/wbrown/janus-graphd/graphd/linksto"
)

const (
	flagConfig   = "config"
	flagDB       = "db"
	flagVerbose  = "verbose"
	flagLogLevel = "log-level"
	flagMetrics  = "metrics"
)

// session is what one command invocation shares between its pre-run,
// run and post-run hooks.
type session struct {
	stdout, stderr io.Writer

	v        *viper.Viper
	tuning   config.Tuning
	logger   *zap.Logger
	registry *prometheus.Registry
	store    storage.Store
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	s := &session{stdout: stdout, stderr: stderr}

	rc := &cobra.Command{
		Use:   "graphd",
		Short: "Run resumable graph iterators against a primitive store.",
		Long: `graphd stores primitives in a Badger database and evaluates iterator
cursors against it. A cursor is the text form of an iterator tree; it
can be frozen after any number of results and resumed later.

Tuning is read from --config (yaml, toml or json) and GRAPHD_ environment
variables, in that order of precedence below the command line.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return s.teardown(cmd)
		},
	}
	rc.PersistentFlags().StringP(flagConfig, "c", "", "Tuning file to read from.")
	rc.PersistentFlags().String(flagDB, "graphd.db", "Badger database directory.")
	rc.PersistentFlags().BoolP(flagVerbose, "v", false, "Print iterator events to stderr.")
	rc.PersistentFlags().String(flagLogLevel, "warn", "Structured log level (debug, info, warn, error).")
	rc.PersistentFlags().Bool(flagMetrics, false, "Print iterator metrics after the command.")

	rc.AddCommand(newLoadCommand(s, stdin))
	rc.AddCommand(newRunCommand(s))
	rc.AddCommand(newFreezeCommand(s))
	rc.AddCommand(newStatsCommand(s))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// setup merges flags, environment and the tuning file, then opens the
// logger and the store.
func (s *session) setup(cmd *cobra.Command) error {
	v := config.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	if path := v.GetString(flagConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	tuning, err := config.FromViper(v)
	if err != nil {
		return err
	}
	s.v, s.tuning = v, tuning

	level, err := zapcore.ParseLevel(v.GetString(flagLogLevel))
	if err != nil {
		return fmt.Errorf("invalid --%s: %w", flagLogLevel, err)
	}
	s.logger = zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(s.stderr),
		level,
	))

	store, err := storage.NewBadgerStore(v.GetString(flagDB))
	if err != nil {
		return err
	}
	s.store = store
	s.logger.Debug("store opened",
		zap.String("db", v.GetString(flagDB)),
		zap.Uint64("horizon", uint64(store.Horizon())))
	return nil
}

func (s *session) teardown(cmd *cobra.Command) error {
	if s.registry != nil && s.v.GetBool(flagMetrics) {
		families, err := s.registry.Gather()
		if err != nil {
			return fmt.Errorf("failed to gather metrics: %w", err)
		}
		fmt.Fprintln(s.stdout, NewTableFormatter().FormatMetrics(families))
	}
	return s.close()
}

// close releases the store; it runs on success and on failure
func (s *session) close() error {
	if s.logger != nil {
		_ = s.logger.Sync()
	}
	if s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	return err
}

// runE closes the session when fn fails, since cobra skips the post-run
// hooks after an error.
func (s *session) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			_ = s.close()
			return err
		}
		return nil
	}
}

// env builds the iterator environment for one request: configured
// tuning, an originals cache and an event collector feeding zap, the
// console and prometheus.
func (s *session) env() (*iterator.Env, error) {
	env := iterator.NewEnv(s.store)
	env.Tuning = s.tuning
	env.Originals = iterator.NewOriginalCache(s.tuning.OriginalCacheSize, s.tuning.OriginalCacheTTL)

	handlers := []annotations.Handler{annotations.NewZapHandler(s.logger)}
	if s.v.GetBool(flagVerbose) {
		handlers = append(handlers, annotations.NewOutputFormatter(s.stderr).Handle)
	}
	if s.v.GetBool(flagMetrics) {
		if s.registry == nil {
			s.registry = prometheus.NewRegistry()
		}
		m, err := annotations.NewMetricsHandler(s.registry)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, m.Handle)
	}
	env.Events = annotations.NewCollector(annotations.Tee(handlers...), false)
	return env, nil
}
