package postgres

import (
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dot2gua/hbase98learning/hbck/catalog"
	"github.com/dot2gua/hbase98learning/hbck/catalog/abstract_sql"
	"github.com/dot2gua/hbase98learning/hbck/util"
)

const createTable = `CREATE TABLE IF NOT EXISTS "%s" (row_key BYTEA PRIMARY KEY, value BYTEA)`

func init() {
	catalog.Stores = append(catalog.Stores, &PostgresStore{})
}

// PostgresStore keeps the catalog in one postgres table, through pgx.
type PostgresStore struct {
	abstract_sql.AbstractSqlStore
}

func (store *PostgresStore) GetName() string {
	return "postgres"
}

func (store *PostgresStore) Initialize(configuration util.Configuration, prefix string) error {
	configuration.SetDefault(prefix+"port", 5432)
	configuration.SetDefault(prefix+"table", abstract_sql.DEFAULT_TABLE)
	dsn, redacted := connString(
		configuration.GetString(prefix+"username"),
		configuration.GetString(prefix+"password"),
		configuration.GetString(prefix+"hostname"),
		configuration.GetInt(prefix+"port"),
		configuration.GetString(prefix+"database"),
		configuration.GetString(prefix+"schema"),
		configuration.GetString(prefix+"sslmode"),
	)
	return store.initialize(dsn, redacted, configuration.GetString(prefix+"table"), abstract_sql.ReadConnectionPool(configuration, prefix))
}

func (store *PostgresStore) initialize(dsn, redacted, table string, pool abstract_sql.ConnectionPool) error {
	store.TableName = table
	store.SqlGenerator = &SqlGenPostgres{
		CreateTableSqlTemplate: createTable,
		DropTableSqlTemplate:   `DROP TABLE "%s"`,
	}
	return store.Open("pgx", dsn, redacted, pool)
}

// connString builds a keyword/value connection string, skipping unset
// settings. redacted is the same string with the password masked.
func connString(user, password, hostname string, port int, database, schema, sslmode string) (dsn, redacted string) {
	portValue := ""
	if port != 0 {
		portValue = strconv.Itoa(port)
	}
	settings := [][2]string{
		{"connect_timeout", "30"},
		{"host", hostname},
		{"port", portValue},
		{"sslmode", sslmode},
		{"user", user},
		{"password", password},
		{"dbname", database},
		{"search_path", schema},
	}
	var full, masked []string
	for _, s := range settings {
		key, value := s[0], s[1]
		if value == "" {
			continue
		}
		full = append(full, key+"="+quoteValue(value))
		if key == "password" {
			value = "*****"
		}
		masked = append(masked, key+"="+quoteValue(value))
	}
	return strings.Join(full, " "), strings.Join(masked, " ")
}

// quoteValue single-quotes values with spaces, quotes or backslashes.
func quoteValue(value string) string {
	if !strings.ContainsAny(value, ` '\`) {
		return value
	}
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value) + "'"
}
