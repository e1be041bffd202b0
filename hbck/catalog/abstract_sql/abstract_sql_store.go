package abstract_sql

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/dot2gua/hbase98learning/hbck/catalog"
	"github.com/dot2gua/hbase98learning/hbck/util"
)

const (
	DEFAULT_TABLE = "hbck_catalog"
)

type SqlGenerator interface {
	GetSqlUpsert(tableName string) string
	GetSqlListAll(tableName string) string
	GetSqlListFrom(tableName string) string
	GetSqlDelete(tableName string) string
	GetSqlCreateTable(tableName string) string
	GetSqlDropTable(tableName string) string
}

// AbstractSqlStore is the shared catalog store over database/sql. Row keys
// are stored as binary so the database orders them bytewise.
type AbstractSqlStore struct {
	SqlGenerator
	DB        *sql.DB
	TableName string
}

// ConnectionPool holds the database/sql pool limits of one store.
type ConnectionPool struct {
	MaxIdle     int
	MaxOpen     int
	MaxLifetime time.Duration
}

func ReadConnectionPool(configuration util.Configuration, prefix string) ConnectionPool {
	return ConnectionPool{
		MaxIdle:     configuration.GetInt(prefix + "connection_max_idle"),
		MaxOpen:     configuration.GetInt(prefix + "connection_max_open"),
		MaxLifetime: time.Duration(configuration.GetInt(prefix+"connection_max_lifetime_seconds")) * time.Second,
	}
}

// Open connects through driver, applies the pool limits and creates the
// catalog table if needed. redacted stands for dsn in errors.
func (store *AbstractSqlStore) Open(driver, dsn, redacted string, pool ConnectionPool) error {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("open %s: %w", redacted, err)
	}
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetConnMaxLifetime(pool.MaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping %s: %w", redacted, err)
	}
	store.DB = db
	glog.V(1).Infof("catalog table %s on %s", store.TableName, redacted)
	return store.CreateTable(ctx)
}

func (store *AbstractSqlStore) CreateTable(ctx context.Context) error {
	createSql := store.GetSqlCreateTable(store.TableName)
	if createSql == "" {
		return nil
	}
	if _, err := store.DB.ExecContext(ctx, createSql); err != nil {
		return fmt.Errorf("create table %s: %w", store.TableName, err)
	}
	return nil
}

func (store *AbstractSqlStore) ListRows(ctx context.Context, prefix string, fn func(row catalog.Row) bool) error {
	var rows *sql.Rows
	var err error
	if prefix == "" {
		rows, err = store.DB.QueryContext(ctx, store.GetSqlListAll(store.TableName))
	} else {
		rows, err = store.DB.QueryContext(ctx, store.GetSqlListFrom(store.TableName), []byte(prefix))
	}
	if err != nil {
		return fmt.Errorf("list %s from %q: %w", store.TableName, prefix, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value []byte
		if err = rows.Scan(&key, &value); err != nil {
			glog.V(0).Infof("scan %s: %v", store.TableName, err)
			return fmt.Errorf("scan: %w", err)
		}
		if !bytes.HasPrefix(key, []byte(prefix)) {
			break
		}
		if !fn(catalog.Row{Key: string(key), Value: value}) {
			break
		}
	}
	return rows.Err()
}

func (store *AbstractSqlStore) PutRows(ctx context.Context, rows []catalog.Row) error {
	return store.inTransaction(ctx, func(tx *sql.Tx) error {
		upsert := store.GetSqlUpsert(store.TableName)
		for _, row := range rows {
			if _, err := tx.ExecContext(ctx, upsert, []byte(row.Key), row.Value); err != nil {
				return fmt.Errorf("upsert %s: %w", row.Key, err)
			}
		}
		return nil
	})
}

func (store *AbstractSqlStore) DeleteRows(ctx context.Context, keys []string) error {
	return store.inTransaction(ctx, func(tx *sql.Tx) error {
		del := store.GetSqlDelete(store.TableName)
		for _, key := range keys {
			if _, err := tx.ExecContext(ctx, del, []byte(key)); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		return nil
	})
}

func (store *AbstractSqlStore) inTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := store.DB.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelReadCommitted,
		ReadOnly:  false,
	})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err = fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			glog.Warningf("rollback %s: %v", store.TableName, rollbackErr)
		}
		return err
	}
	return tx.Commit()
}

func (store *AbstractSqlStore) Shutdown() {
	if store.DB != nil {
		store.DB.Close()
	}
}
