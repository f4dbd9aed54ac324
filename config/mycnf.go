package config

import (
	"fmt"
	"strconv"

	"github.com/go-ini/ini"

	"github.com/hadb-go/hadb"
)

// ParseMyCnf parses a MySQL my.cnf file. It only reads the "[client]"
// section, same as the mysql CLI.
func ParseMyCnf(file string) (hadb.Defaults, error) {
	opts := ini.LoadOptions{AllowBooleanKeys: true}
	mycnf, err := ini.LoadSources(opts, file)
	if err != nil {
		return hadb.Defaults{}, err
	}

	client := mycnf.Section("client")
	def := hadb.Defaults{
		Hostname: client.Key("host").String(),
		Socket:   client.Key("socket").String(),
		Username: client.Key("user").String(),
		Password: client.Key("password").String(),
	}
	if port := client.Key("port").String(); port != "" {
		def.Port, err = strconv.Atoi(port)
		if err != nil {
			return hadb.Defaults{}, fmt.Errorf("%w: %s: invalid port %q", hadb.ErrConfig, file, port)
		}
	}
	return def, nil
}
