//go:build !windows && !plan9

package hadb

import (
	"log/syslog"
)

// SyslogIdent is the default syslog identity.
const SyslogIdent = "HADB"

// SyslogLogger writes interpolated entries to the local syslog daemon
// on the LOCAL0 facility.
type SyslogLogger struct {
	w *syslog.Writer
}

// NewSyslogLogger connects to the local syslog daemon. An empty ident
// means SyslogIdent.
func NewSyslogLogger(ident string) (*SyslogLogger, error) {
	if ident == "" {
		ident = SyslogIdent
	}
	w, err := syslog.New(syslog.LOG_LOCAL0|syslog.LOG_INFO, ident)
	if err != nil {
		return nil, err
	}
	return &SyslogLogger{w: w}, nil
}

func (l *SyslogLogger) Log(level Level, msg string, fields Fields) {
	msg = Interpolate(msg, fields)
	switch level {
	case LevelDebug:
		_ = l.w.Debug(msg)
	case LevelInfo:
		_ = l.w.Info(msg)
	case LevelWarning:
		_ = l.w.Warning(msg)
	case LevelError:
		_ = l.w.Err(msg)
	default:
		_ = l.w.Crit(msg)
	}
}

func (l *SyslogLogger) Close() error {
	return l.w.Close()
}
