package mysql

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/hadb-go/hadb"
)

const defaultHost = "127.0.0.1"

var charsetName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// NewConfig converts dial options into a driver configuration. The
// init command and the charset are not part of it: they run once the
// session is established.
func NewConfig(opts hadb.DialOpts) (*gomysql.Config, error) {
	cfg := gomysql.NewConfig()
	cfg.User = opts.Username
	cfg.Passwd = opts.Password
	cfg.DBName = opts.Database

	if opts.Hostname == "" && opts.Socket != "" {
		cfg.Net = "unix"
		cfg.Addr = opts.Socket
	} else {
		host, port := opts.Hostname, opts.Port
		if host == "" {
			host = defaultHost
		}
		if port == 0 {
			port = hadb.DefaultPort
		}
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	}

	if opts.Charset != "" && !charsetName.MatchString(opts.Charset) {
		return nil, fmt.Errorf("%w: invalid charset %q", hadb.ErrConfig, opts.Charset)
	}

	var err error
	for key, value := range opts.Options {
		switch key {
		case hadb.OptConnectTimeout:
			cfg.Timeout, err = parseTimeout(key, value)
		case hadb.OptReadTimeout:
			cfg.ReadTimeout, err = parseTimeout(key, value)
		case hadb.OptWriteTimeout:
			cfg.WriteTimeout, err = parseTimeout(key, value)
		case hadb.OptTLS:
			cfg.TLSConfig = value
		case hadb.OptCollation:
			cfg.Collation = value
		case hadb.OptInitCommand:
		default:
			err = fmt.Errorf("%w: unsupported option %q", hadb.ErrConfig, key)
		}
		if err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// parseTimeout accepts a Go duration or a number of seconds.
func parseTimeout(key hadb.Option, value string) (time.Duration, error) {
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", hadb.ErrConfig, key, err)
	}
	return d, nil
}

// initStatements splits an init command on ";".
func initStatements(initCommand string) []string {
	var stmts []string
	for _, s := range strings.Split(initCommand, ";") {
		if s = strings.TrimSpace(s); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
