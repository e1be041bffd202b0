//go:build linux || darwin || windows

// limited GOOS due to modernc.org/libc/unistd

package sqlite

import (
	_ "modernc.org/sqlite"

	"github.com/dot2gua/hbase98learning/hbck/catalog"
	"github.com/dot2gua/hbase98learning/hbck/catalog/abstract_sql"
	"github.com/dot2gua/hbase98learning/hbck/catalog/mysql"
	"github.com/dot2gua/hbase98learning/hbck/util"
)

func init() {
	catalog.Stores = append(catalog.Stores, &SqliteStore{})
}

// SqliteStore keeps the catalog in a single local file.
type SqliteStore struct {
	abstract_sql.AbstractSqlStore
}

func (store *SqliteStore) GetName() string {
	return "sqlite"
}

func (store *SqliteStore) Initialize(configuration util.Configuration, prefix string) (err error) {
	dbFile := util.ResolvePath(configuration.GetString(prefix + "dbFile"))
	return store.initialize(dbFile)
}

func (store *SqliteStore) initialize(dbFile string) error {
	store.TableName = abstract_sql.DEFAULT_TABLE
	store.SqlGenerator = &mysql.SqlGenMysql{
		CreateTableSqlTemplate: `CREATE TABLE IF NOT EXISTS "%s" (
			row_key BLOB PRIMARY KEY,
			value BLOB
		) WITHOUT ROWID;`,
		DropTableSqlTemplate: `DROP TABLE "%s"`,
		UpsertQueryTemplate: `INSERT INTO "%s"(row_key,value)VALUES(?,?)
		ON CONFLICT(row_key) DO UPDATE SET
			value=excluded.value;
		`,
	}

	// one writer at a time, sqlite locks the whole file
	return store.Open("sqlite", dbFile, dbFile, abstract_sql.ConnectionPool{MaxIdle: 1, MaxOpen: 1})
}
