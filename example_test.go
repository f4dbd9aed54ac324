package hadb_test

import (
	"context"
	"fmt"

	"github.com/hadb-go/hadb"
	"github.com/hadb-go/hadb/test_helpers"
)

func ExampleNewServerDescription() {
	defaults := hadb.Defaults{Username: "app", Password: "secret"}
	desc := hadb.NewServerDescription(defaults).
		SetHostname("p:db1").
		SetPort(3307).
		SetDatabase("shop").
		SetAutocommit(false)

	fmt.Println(desc)
	fmt.Println(desc.Persistent(), desc.Username())
	// Output:
	// db1:3307
	// true app
}

func ExampleConnect() {
	tr := test_helpers.NewMockTransport()
	desc := hadb.NewServerDescription().
		SetHostname("db1").
		SetOption(hadb.OptInitCommand, "SET @app = 'demo'").
		SetAutocommit(true)

	conn, err := hadb.Connect(context.Background(), tr, desc)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer conn.Close()

	cmd := tr.Handles()[0].Opts().Options[hadb.OptInitCommand]
	fmt.Println(conn.ID())
	fmt.Println(cmd)
	// Output:
	// db1:3306#1
	// SET @app = 'demo';SET AUTOCOMMIT = 1
}
