// Package command implements the hadb command line: running statements
// through a dispatcher and checking the servers of a configuration.
package command

import (
	"context"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/hadb-go/hadb"
	"github.com/hadb-go/hadb/config"
	"github.com/hadb-go/hadb/dispatcher"
	"github.com/hadb-go/hadb/mysql"
	"github.com/hadb-go/hadb/pool"
)

// Transport is what commands dial and poll with.
type Transport interface {
	hadb.Dialer
	hadb.Poller
}

type rootOpts struct {
	configPath string
	verbose    bool
	syslog     bool

	newTransport func(logger hadb.Logger) (Transport, func() error)
}

// NewRootCommand returns the hadb command with every subcommand.
func NewRootCommand() *cobra.Command {
	return newRootCommand(func(logger hadb.Logger) (Transport, func() error) {
		tr := mysql.New(mysql.Opts{Logger: logger})
		return tr, tr.Close
	})
}

func newRootCommand(newTransport func(logger hadb.Logger) (Transport, func() error)) *cobra.Command {
	opts := &rootOpts{newTransport: newTransport}

	root := &cobra.Command{
		Use:   "hadb",
		Short: "Run statements across a pool of MySQL servers",
		Long: `hadb dispatches statements over a bounded set of connections opened
from a pool of MySQL servers described in a YAML file.

Get started with:
  hadb check --config hadb.yaml
  hadb query --config hadb.yaml --async "SELECT 1" "SELECT 2"`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Flag errors still print the usage.
			cmd.SilenceUsage = true
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "hadb.yaml", "configuration file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug messages")
	root.PersistentFlags().BoolVar(&opts.syslog, "syslog", false, "log to the local syslog instead of stderr")

	root.AddCommand(newQueryCommand(opts), newCheckCommand(opts))
	return root
}

// env is what a command runs with. close releases it in reverse
// order of setup.
type env struct {
	logger    hadb.Logger
	transport Transport
	pool      *pool.ServerPool
	opts      dispatcher.Opts
	closers   []func() error
}

func (o *rootOpts) setup(cmd *cobra.Command) (*env, error) {
	f, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	e := &env{}
	if e.logger, err = o.logger(cmd); err != nil {
		return nil, err
	}
	if c, ok := e.logger.(interface{ Close() error }); ok {
		e.closers = append(e.closers, c.Close)
	}

	tr, closeTransport := o.newTransport(e.logger)
	e.transport = tr
	e.closers = append(e.closers, closeTransport)

	if e.pool, e.opts, err = f.Build(tr, e.logger); err != nil {
		e.close()
		return nil, err
	}
	return e, nil
}

func (o *rootOpts) logger(cmd *cobra.Command) (hadb.Logger, error) {
	if o.syslog {
		return newSyslogLogger()
	}
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	logger := hadb.NewSlogLogger(slog.New(handler))
	return logger.WithContext(contextOf(cmd)), nil
}

func (e *env) close() error {
	var errs *multierror.Error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
