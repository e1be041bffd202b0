package mysql

import (
	"fmt"

	"github.com/dot2gua/hbase98learning/hbck/catalog/abstract_sql"
)

type SqlGenMysql struct {
	CreateTableSqlTemplate string
	DropTableSqlTemplate   string
	UpsertQueryTemplate    string
}

var (
	_ = abstract_sql.SqlGenerator(&SqlGenMysql{})
)

func (gen *SqlGenMysql) GetSqlUpsert(tableName string) string {
	if gen.UpsertQueryTemplate != "" {
		return fmt.Sprintf(gen.UpsertQueryTemplate, tableName)
	}
	return fmt.Sprintf("INSERT INTO `%s` (row_key,value) VALUES(?,?) ON DUPLICATE KEY UPDATE value=VALUES(value)", tableName)
}

func (gen *SqlGenMysql) GetSqlListAll(tableName string) string {
	return fmt.Sprintf("SELECT row_key, value FROM `%s` ORDER BY row_key ASC", tableName)
}

func (gen *SqlGenMysql) GetSqlListFrom(tableName string) string {
	return fmt.Sprintf("SELECT row_key, value FROM `%s` WHERE row_key>=? ORDER BY row_key ASC", tableName)
}

func (gen *SqlGenMysql) GetSqlDelete(tableName string) string {
	return fmt.Sprintf("DELETE FROM `%s` WHERE row_key=?", tableName)
}

func (gen *SqlGenMysql) GetSqlCreateTable(tableName string) string {
	return fmt.Sprintf(gen.CreateTableSqlTemplate, tableName)
}

func (gen *SqlGenMysql) GetSqlDropTable(tableName string) string {
	return fmt.Sprintf(gen.DropTableSqlTemplate, tableName)
}
