package postgres

import (
	"fmt"

	"github.com/dot2gua/hbase98learning/hbck/catalog/abstract_sql"
)

type SqlGenPostgres struct {
	CreateTableSqlTemplate string
	DropTableSqlTemplate   string
}

var (
	_ = abstract_sql.SqlGenerator(&SqlGenPostgres{})
)

func (gen *SqlGenPostgres) GetSqlUpsert(tableName string) string {
	return fmt.Sprintf(`INSERT INTO "%s" (row_key,value) VALUES($1,$2) ON CONFLICT (row_key) DO UPDATE SET value=EXCLUDED.value`, tableName)
}

func (gen *SqlGenPostgres) GetSqlListAll(tableName string) string {
	return fmt.Sprintf(`SELECT row_key, value FROM "%s" ORDER BY row_key ASC`, tableName)
}

func (gen *SqlGenPostgres) GetSqlListFrom(tableName string) string {
	return fmt.Sprintf(`SELECT row_key, value FROM "%s" WHERE row_key>=$1 ORDER BY row_key ASC`, tableName)
}

func (gen *SqlGenPostgres) GetSqlDelete(tableName string) string {
	return fmt.Sprintf(`DELETE FROM "%s" WHERE row_key=$1`, tableName)
}

func (gen *SqlGenPostgres) GetSqlCreateTable(tableName string) string {
	return fmt.Sprintf(gen.CreateTableSqlTemplate, tableName)
}

func (gen *SqlGenPostgres) GetSqlDropTable(tableName string) string {
	return fmt.Sprintf(gen.DropTableSqlTemplate, tableName)
}
