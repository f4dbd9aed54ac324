package mysql

import (
	"database/sql"

	gomysql "github.com/go-sql-driver/mysql"
)

func (t *Transport) SetOpenDB(fn func(cfg *gomysql.Config) (*sql.DB, error)) {
	t.openDB = fn
}
