//go:build windows || plan9

package command

import (
	"errors"

	"github.com/hadb-go/hadb"
)

func newSyslogLogger() (hadb.Logger, error) {
	return nil, errors.New("syslog is not supported on this platform")
}
