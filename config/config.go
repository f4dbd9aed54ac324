// Package config builds a server pool and dispatcher options from a
// YAML file, with connection defaults optionally read from a my.cnf.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hadb-go/hadb"
	"github.com/hadb-go/hadb/dispatcher"
	"github.com/hadb-go/hadb/pool"
)

// File is the content of a configuration file.
type File struct {
	Selection              string   `yaml:"selection,omitempty"`
	MaxConn                int      `yaml:"max_conn,omitempty"`
	PollWait               Duration `yaml:"poll_wait,omitempty"`
	ConnectAttempts        int      `yaml:"connect_attempts,omitempty"`
	MarkDownOnConnectError bool     `yaml:"mark_down_on_connect_error,omitempty"`
	// Shuffle randomizes the server order once loaded.
	Shuffle bool `yaml:"shuffle,omitempty"`
	// DefaultsFile is a my.cnf whose [client] section provides the
	// defaults of every server. Relative paths are resolved against the
	// directory of the configuration file.
	DefaultsFile string   `yaml:"defaults_file,omitempty"`
	Servers      []Server `yaml:"servers"`
}

// Server describes one endpoint. Empty fields fall back to the
// defaults file.
type Server struct {
	Hostname   string            `yaml:"hostname,omitempty"`
	Port       int               `yaml:"port,omitempty"`
	Socket     string            `yaml:"socket,omitempty"`
	Username   string            `yaml:"username,omitempty"`
	Password   string            `yaml:"password,omitempty"`
	Database   string            `yaml:"database,omitempty"`
	Charset    *string           `yaml:"charset,omitempty"`
	Autocommit *bool             `yaml:"autocommit,omitempty"`
	Persistent bool              `yaml:"persistent,omitempty"`
	Options    map[string]string `yaml:"options,omitempty"`
}

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Load reads and validates the configuration file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if f.DefaultsFile != "" && !filepath.IsAbs(f.DefaultsFile) {
		f.DefaultsFile = filepath.Join(filepath.Dir(path), f.DefaultsFile)
	}
	return f, nil
}

// Parse decodes and validates a configuration. Unknown keys are errors.
func Parse(data []byte) (*File, error) {
	f := &File{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", hadb.ErrConfig, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks the values a pool or a dispatcher would reject.
func (f *File) Validate() error {
	if _, err := f.selection(); err != nil {
		return err
	}
	switch {
	case f.MaxConn < 0:
		return fmt.Errorf("%w: max_conn must be positive, got %d", hadb.ErrConfig, f.MaxConn)
	case f.PollWait < 0:
		return fmt.Errorf("%w: poll_wait must be positive, got %s", hadb.ErrConfig, time.Duration(f.PollWait))
	case f.ConnectAttempts < 0:
		return fmt.Errorf("%w: connect_attempts must be positive, got %d", hadb.ErrConfig, f.ConnectAttempts)
	case len(f.Servers) == 0:
		return fmt.Errorf("%w: no servers", hadb.ErrConfig)
	}
	for i, s := range f.Servers {
		if s.Hostname == "" && s.Socket == "" && f.DefaultsFile == "" {
			return fmt.Errorf("%w: server %d: hostname or socket required", hadb.ErrConfig, i)
		}
		if s.Port < 0 || s.Port > 65535 {
			return fmt.Errorf("%w: server %d: invalid port %d", hadb.ErrConfig, i, s.Port)
		}
	}
	return nil
}

func (f *File) selection() (pool.Selection, error) {
	if f.Selection == "" {
		return pool.Fallback, nil
	}
	return pool.ParseSelection(f.Selection)
}

// Build creates the server pool, every server dialing with dialer, and
// the matching dispatcher options.
func (f *File) Build(dialer hadb.Dialer, logger hadb.Logger) (*pool.ServerPool, dispatcher.Opts, error) {
	sel, err := f.selection()
	if err != nil {
		return nil, dispatcher.Opts{}, err
	}

	var defaults []hadb.Defaults
	if f.DefaultsFile != "" {
		def, err := ParseMyCnf(f.DefaultsFile)
		if err != nil {
			return nil, dispatcher.Opts{}, err
		}
		defaults = append(defaults, def)
	}

	p := pool.New(pool.Opts{Selection: sel, Logger: logger})
	for _, s := range f.Servers {
		if err := p.AddServer(p.NewServer(s.Description(defaults...), dialer)); err != nil {
			return nil, dispatcher.Opts{}, err
		}
	}
	if f.Shuffle {
		p.ShufflePool()
	}

	opts := dispatcher.Opts{
		MaxConn:                f.MaxConn,
		PollWait:               time.Duration(f.PollWait),
		ConnectAttempts:        f.ConnectAttempts,
		MarkDownOnConnectError: f.MarkDownOnConnectError,
		Logger:                 logger,
	}
	return p, opts, nil
}

// Description converts s into a server description on top of defaults.
func (s Server) Description(defaults ...hadb.Defaults) *hadb.ServerDescription {
	desc := hadb.NewServerDescription(defaults...)
	if s.Hostname != "" {
		desc.SetHostname(s.Hostname)
	}
	if s.Port != 0 {
		desc.SetPort(s.Port)
	}
	if s.Socket != "" {
		desc.SetSocket(s.Socket)
	}
	if s.Username != "" {
		desc.SetUsername(s.Username)
	}
	if s.Password != "" {
		desc.SetPassword(s.Password)
	}
	if s.Persistent {
		desc.SetPersistent(true)
	}
	desc.SetDatabase(s.Database)
	if s.Charset != nil {
		desc.SetCharset(*s.Charset)
	}
	if s.Autocommit != nil {
		desc.SetAutocommit(*s.Autocommit)
	}
	for k, v := range s.Options {
		desc.SetOption(hadb.Option(k), v)
	}
	return desc
}
