package command

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hadb-go/hadb"
)

var errAllDown = errors.New("no server is reachable")

func newCheckCommand(root *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Connect once to every configured server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
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

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			up := 0
			for _, srv := range e.pool.Servers() {
				conn, err := srv.NewConnection(ctx)
				if err != nil {
					fmt.Fprintf(tw, "%s\tdown\t%v\n", srv, err)
					continue
				}
				up++
				fmt.Fprintf(tw, "%s\tup\tsession %d\n", srv, conn.ID().Session)
				if err := conn.Close(); err != nil {
					e.logger.Log(hadb.LevelWarning, "close {conn}: {error}", hadb.Fields{"conn": conn.ID(), "error": err})
				}
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if up == 0 {
				return errAllDown
			}
			return nil
		},
	}
}
