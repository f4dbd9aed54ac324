package hadb

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Option is a transport option key of a ServerDescription.
type Option string

const (
	// OptConnectTimeout is the handshake timeout, a Go duration or a number of seconds.
	OptConnectTimeout Option = "connect_timeout"
	// OptReadTimeout is the I/O read timeout.
	OptReadTimeout Option = "read_timeout"
	// OptWriteTimeout is the I/O write timeout.
	OptWriteTimeout Option = "write_timeout"
	// OptInitCommand holds statements run right after the handshake,
	// separated by ";".
	OptInitCommand Option = "init_command"
	// OptTLS names a TLS configuration known to the transport.
	OptTLS Option = "tls"
	// OptCollation sets the connection collation.
	OptCollation Option = "collation"
)

const (
	// PersistentPrefix marks a hostname as persistent, e.g. "p:db1".
	PersistentPrefix = "p:"
	// DefaultPort is the port omitted when rendering descriptions.
	DefaultPort = 3306
)

// Defaults are connection parameters applied before explicit values,
// typically read from the [client] section of a my.cnf file.
type Defaults struct {
	Hostname string
	Port     int
	Socket   string
	Username string
	Password string
}

// ServerDescription holds the parameters used to open connections to
// a single endpoint. It is built with the Set* methods and must not be
// modified once handed to a Server.
type ServerDescription struct {
	hostname   string
	username   string
	password   string
	database   string
	port       int
	socket     string
	options    map[Option]string
	charset    *string
	autocommit *bool
	persistent bool
}

// NewServerDescription creates a description initialized from defaults.
// Later defaults override earlier ones field by field.
func NewServerDescription(defaults ...Defaults) *ServerDescription {
	d := &ServerDescription{
		port:    DefaultPort,
		options: make(map[Option]string),
	}
	for _, def := range defaults {
		if def.Hostname != "" {
			d.SetHostname(def.Hostname)
		}
		if def.Port != 0 {
			d.port = def.Port
		}
		if def.Socket != "" {
			d.socket = def.Socket
		}
		if def.Username != "" {
			d.username = def.Username
		}
		if def.Password != "" {
			d.password = def.Password
		}
	}
	return d
}

// SetHostname sets the hostname. A PersistentPrefix is stripped and
// turns the persistent flag on.
func (d *ServerDescription) SetHostname(hostname string) *ServerDescription {
	if strings.HasPrefix(hostname, PersistentPrefix) {
		hostname = strings.TrimPrefix(hostname, PersistentPrefix)
		d.persistent = true
	}
	d.hostname = hostname
	return d
}

func (d *ServerDescription) SetUsername(username string) *ServerDescription {
	d.username = username
	return d
}

func (d *ServerDescription) SetPassword(password string) *ServerDescription {
	d.password = password
	return d
}

func (d *ServerDescription) SetDatabase(database string) *ServerDescription {
	d.database = database
	return d
}

func (d *ServerDescription) SetPort(port int) *ServerDescription {
	d.port = port
	return d
}

func (d *ServerDescription) SetSocket(socket string) *ServerDescription {
	d.socket = socket
	return d
}

func (d *ServerDescription) SetOption(key Option, value string) *ServerDescription {
	d.options[key] = value
	return d
}

func (d *ServerDescription) SetCharset(charset string) *ServerDescription {
	d.charset = &charset
	return d
}

func (d *ServerDescription) SetAutocommit(autocommit bool) *ServerDescription {
	d.autocommit = &autocommit
	return d
}

func (d *ServerDescription) SetPersistent(persistent bool) *ServerDescription {
	d.persistent = persistent
	return d
}

func (d *ServerDescription) Hostname() string { return d.hostname }
func (d *ServerDescription) Username() string { return d.username }
func (d *ServerDescription) Password() string { return d.password }
func (d *ServerDescription) Database() string { return d.database }
func (d *ServerDescription) Port() int { return d.port }
func (d *ServerDescription) Socket() string { return d.socket }
func (d *ServerDescription) Persistent() bool { return d.persistent }

// Option returns the value of a single transport option.
func (d *ServerDescription) Option(key Option) (string, bool) {
	v, ok := d.options[key]
	return v, ok
}

// Options returns a copy of the transport options.
func (d *ServerDescription) Options() map[Option]string {
	opts := make(map[Option]string, len(d.options))
	for k, v := range d.options {
		opts[k] = v
	}
	return opts
}

// Charset returns the configured charset, if any.
func (d *ServerDescription) Charset() (string, bool) {
	if d.charset == nil {
		return "", false
	}
	return *d.charset, true
}

// Autocommit returns the autocommit mode, if one was set.
func (d *ServerDescription) Autocommit() (bool, bool) {
	if d.autocommit == nil {
		return false, false
	}
	return *d.autocommit, true
}

// Clone returns a deep copy of the description.
func (d *ServerDescription) Clone() *ServerDescription {
	c := *d
	c.options = d.Options()
	if d.charset != nil {
		cs := *d.charset
		c.charset = &cs
	}
	if d.autocommit != nil {
		ac := *d.autocommit
		c.autocommit = &ac
	}
	return &c
}

// Endpoint returns the network address: "host:port", or the socket path
// when no hostname is set.
func (d *ServerDescription) Endpoint() string {
	if d.hostname == "" && d.socket != "" {
		return d.socket
	}
	return net.JoinHostPort(d.hostname, strconv.Itoa(d.port))
}

// String renders "host[:port]", the port being omitted when it is the
// default one. Credentials are never rendered.
func (d *ServerDescription) String() string {
	if d.hostname == "" && d.socket != "" {
		return fmt.Sprintf("unix(%s)", d.socket)
	}
	if d.port == DefaultPort || d.port == 0 {
		return d.hostname
	}
	return net.JoinHostPort(d.hostname, strconv.Itoa(d.port))
}
