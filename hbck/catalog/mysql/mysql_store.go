package mysql

import (
	"net"
	"strconv"

	mysqldriver "github.com/go-sql-driver/mysql"

	"github.com/dot2gua/hbase98learning/hbck/catalog"
	"github.com/dot2gua/hbase98learning/hbck/catalog/abstract_sql"
	"github.com/dot2gua/hbase98learning/hbck/util"
)

const createTable = "CREATE TABLE IF NOT EXISTS `%s` (row_key VARBINARY(767) NOT NULL PRIMARY KEY, value MEDIUMBLOB)"

func init() {
	catalog.Stores = append(catalog.Stores, &MysqlStore{})
}

// MysqlStore keeps the catalog in one mysql table. VARBINARY keys sort
// bytewise, the order ListRows relies on.
type MysqlStore struct {
	abstract_sql.AbstractSqlStore
}

func (store *MysqlStore) GetName() string {
	return "mysql"
}

func (store *MysqlStore) Initialize(configuration util.Configuration, prefix string) error {
	configuration.SetDefault(prefix+"port", 3306)
	configuration.SetDefault(prefix+"table", abstract_sql.DEFAULT_TABLE)
	cfg := connectionConfig(
		configuration.GetString(prefix+"username"),
		configuration.GetString(prefix+"password"),
		configuration.GetString(prefix+"hostname"),
		configuration.GetInt(prefix+"port"),
		configuration.GetString(prefix+"database"),
	)
	return store.initialize(cfg, configuration.GetString(prefix+"table"), abstract_sql.ReadConnectionPool(configuration, prefix))
}

func connectionConfig(user, password, hostname string, port int, database string) *mysqldriver.Config {
	cfg := mysqldriver.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(hostname, strconv.Itoa(port))
	cfg.DBName = database
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg
}

// redactedDSN is the DSN of cfg with the password masked, for logs and errors.
func redactedDSN(cfg *mysqldriver.Config) string {
	masked := cfg.Clone()
	if masked.Passwd != "" {
		masked.Passwd = "*****"
	}
	return masked.FormatDSN()
}

func (store *MysqlStore) initialize(cfg *mysqldriver.Config, table string, pool abstract_sql.ConnectionPool) error {
	store.TableName = table
	store.SqlGenerator = &SqlGenMysql{
		CreateTableSqlTemplate: createTable,
		DropTableSqlTemplate:   "DROP TABLE `%s`",
	}
	return store.Open("mysql", cfg.FormatDSN(), redactedDSN(cfg), pool)
}
