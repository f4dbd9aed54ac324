package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/hadb-go/hadb"
	"github.com/hadb-go/hadb/dispatcher"
	"github.com/hadb-go/hadb/mysql"
	"github.com/hadb-go/hadb/prom"
)

type queryOpts struct {
	async       bool
	unbuffered  bool
	maxWait     time.Duration
	metricsAddr string
}

func newQueryCommand(root *rootOpts) *cobra.Command {
	opts := &queryOpts{}
	cmd := &cobra.Command{
		Use:   "query [flags] STATEMENT...",
		Short: "Run statements through the dispatcher",
		Long: `Run each statement on a connection of the pool and print its result.

With --async every statement is submitted at once; statements beyond
max_conn are queued and results are printed in completion order.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, root, opts, args)
		},
	}
	cmd.Flags().BoolVar(&opts.async, "async", false, "submit every statement asynchronously")
	cmd.Flags().BoolVar(&opts.unbuffered, "unbuffered", false, "stream results of synchronous statements")
	cmd.Flags().DurationVar(&opts.maxWait, "max-wait", 0, "longest wait for a connection or a result, poll_wait when zero")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve dispatcher metrics on this address while running")
	return cmd
}

func runQuery(cmd *cobra.Command, root *rootOpts, opts *queryOpts, statements []string) (err error) {
	ctx := contextOf(cmd)
	e, err := root.setup(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.close(); err == nil {
			err = cerr
		}
	}()

	d := dispatcher.New(e.pool, e.transport, e.opts)
	defer d.Close()

	if opts.metricsAddr != "" {
		stop, err := serveMetrics(opts.metricsAddr, d, e.logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	out := cmd.OutOrStdout()
	if !opts.async {
		for _, text := range statements {
			res, err := d.Query(ctx, text, !opts.unbuffered, opts.maxWait)
			if err != nil {
				return err
			}
			if err := printResult(out, res.QueryID, res.Data, res.Status); err != nil {
				return err
			}
		}
		return nil
	}

	for _, text := range statements {
		if _, _, err := d.AsyncQuery(ctx, text); err != nil {
			return err
		}
	}
	var failed *multierror.Error
	for remaining := len(statements); remaining > 0; remaining-- {
		res, ok, err := d.GetNextAsyncResult(ctx, opts.maxWait)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no result after waiting, %d statements pending", remaining)
		}
		if res.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "-- query %d: %v\n", res.QueryID, res.Err)
			failed = multierror.Append(failed, res.Err)
			continue
		}
		if err := printResult(out, res.QueryID, res.Data, hadb.Status{}); err != nil {
			return err
		}
	}
	return failed.ErrorOrNil()
}

func printResult(w io.Writer, qid dispatcher.QueryID, data any, st hadb.Status) error {
	fmt.Fprintf(w, "-- query %d\n", qid)

	switch data := data.(type) {
	case *mysql.ResultSet:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for i, col := range data.Columns {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, col)
		}
		fmt.Fprintln(tw)
		for _, row := range data.Rows {
			for i, v := range row {
				if i > 0 {
					fmt.Fprint(tw, "\t")
				}
				if v == nil {
					v = "NULL"
				}
				fmt.Fprint(tw, v)
			}
			fmt.Fprintln(tw)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(w, "(%d rows)\n", len(data.Rows))
	case interface {
		Next() bool
		Close() error
	}:
		// Streamed rows are not printed.
		return data.Close()
	case bool:
		fmt.Fprintf(w, "OK, %d rows affected\n", st.AffectedRows)
	default:
		fmt.Fprintln(w, data)
	}
	return nil
}

func serveMetrics(addr string, d *dispatcher.Dispatcher, logger hadb.Logger) (func(), error) {
	exp, err := prom.NewExporter(prom.NewCollector(d, ""))
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", exp)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log(hadb.LevelError, "metrics server: {error}", hadb.Fields{"error": err})
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}
