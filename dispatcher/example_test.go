package dispatcher_test

import (
	"context"
	"fmt"
	"time"

	"github.com/hadb-go/hadb"
	"github.com/hadb-go/hadb/dispatcher"
	"github.com/hadb-go/hadb/pool"
	"github.com/hadb-go/hadb/test_helpers"
)

// Mixed synchronous and asynchronous queries over a pool where one
// server is unreachable.
func Example() {
	ctx := context.Background()
	transport := test_helpers.NewMockTransport()
	transport.FailDial("non_existing_hostname:3306",
		&hadb.ConnectError{Code: hadb.ErrCodeConnHostError, Msg: "unknown host"})

	ok := hadb.NewServerDescription().
		SetHostname("db1").
		SetUsername("root").
		SetOption(hadb.OptConnectTimeout, "2s")
	nok := hadb.NewServerDescription().
		SetHostname("non_existing_hostname").
		SetUsername("1nv4lid User").
		SetPassword("wrong password")

	servers := pool.New(pool.Opts{Selection: pool.Fallback})
	for _, desc := range []*hadb.ServerDescription{ok, nok, ok} {
		if err := servers.AddServer(servers.NewServer(desc, transport)); err != nil {
			fmt.Println(err)
			return
		}
	}

	db := dispatcher.New(servers, transport, dispatcher.Opts{MaxConn: 3})
	defer db.Close()

	var ids []dispatcher.QueryID
	for i := 1; i <= 5; i++ {
		sql := fmt.Sprintf("SELECT '%d'", i)
		if i%3 == 0 {
			res, err := db.Query(ctx, sql, true, time.Second)
			if err != nil {
				fmt.Println(err)
				continue
			}
			fmt.Printf("sync %d: %v\n", res.QueryID, res.Data)
			continue
		}
		qid, queued, err := db.AsyncQuery(ctx, sql)
		if err != nil {
			fmt.Println(err)
			continue
		}
		fmt.Printf("async %d queued=%t\n", qid, queued)
		ids = append(ids, qid)
	}

	transport.CompleteAll()
	res, found, err := db.WaitForQuery(ctx, ids[0], time.Second)
	if err != nil || !found {
		fmt.Println("query", ids[0], "not found", err)
		return
	}
	fmt.Printf("result %d: %v\n", res.QueryID, res.Data)

	transport.AutoComplete = true
	for i := 1; i < len(ids); i++ {
		res, found, err := db.GetNextAsyncResult(ctx, time.Second)
		if err != nil || !found {
			fmt.Println("no result", err)
			continue
		}
		fmt.Printf("result %d: %v\n", res.QueryID, res.Data)
	}
	// Output:
	// async 1 queued=false
	// async 2 queued=false
	// sync 3: SELECT '3'
	// async 4 queued=false
	// async 5 queued=true
	// result 1: SELECT '1'
	// result 2: SELECT '2'
	// result 4: SELECT '4'
	// result 5: SELECT '5'
}
