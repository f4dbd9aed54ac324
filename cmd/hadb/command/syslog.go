//go:build !windows && !plan9

package command

import "github.com/hadb-go/hadb"

func newSyslogLogger() (hadb.Logger, error) {
	return hadb.NewSyslogLogger(hadb.SyslogIdent)
}
