package test_helpers

import (
	"context"
	"testing"

	"github.com/hadb-go/hadb"
)

// NewDescription returns a description of host on the default port.
func NewDescription(host string) *hadb.ServerDescription {
	return hadb.NewServerDescription().SetHostname(host).SetUsername("test")
}

// ConnectWithValidation opens a connection through dialer. It returns a
// valid connection if it is successful, otherwise finishes a test with
// an error.
func ConnectWithValidation(t testing.TB, dialer hadb.Dialer, desc *hadb.ServerDescription) *hadb.Connection {
	t.Helper()

	conn, err := hadb.Connect(context.Background(), dialer, desc)
	if err != nil {
		t.Fatalf("Failed to connect: %s", err.Error())
	}
	if conn == nil {
		t.Fatalf("conn is nil after Connect")
	}
	return conn
}

// RecordingLogger keeps every entry it receives.
type RecordingLogger struct {
	Entries []LogEntry
}

type LogEntry struct {
	Level  hadb.Level
	Msg    string
	Fields hadb.Fields
}

func (l *RecordingLogger) Log(level hadb.Level, msg string, fields hadb.Fields) {
	l.Entries = append(l.Entries, LogEntry{Level: level, Msg: hadb.Interpolate(msg, fields), Fields: fields})
}

// Count returns the number of entries at level.
func (l *RecordingLogger) Count(level hadb.Level) int {
	n := 0
	for _, e := range l.Entries {
		if e.Level == level {
			n++
		}
	}
	return n
}
