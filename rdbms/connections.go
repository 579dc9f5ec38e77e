package rdbms

import (
	"database/sql"
	"fmt"

	"github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/rdbms/shared"
	"github.com/xo/dburl"
)

// DialectFor returns the SQL dialect of a connection type.
func DialectFor(connectionType string) (shared.Dialect, error) {
	switch connectionType {
	case constants.ConnectionTypePostgres:
		return NewPostgresDialect(), nil
	case constants.ConnectionTypeSnowflake:
		return NewSnowflakeDialect(), nil
	case constants.ConnectionTypeSqlServer:
		return NewSqlServerDialect(), nil
	case constants.ConnectionTypeSqlite:
		return NewSqliteDialect(), nil
	}
	return nil, fmt.Errorf("unsupported database type, %q", connectionType)
}

// OpenDbConnection opens a database connection using the supplied DSN.
func OpenDbConnection(log logger.Logger, d shared.DsnConnectionDetails) (db shared.Connector, err error) {
	connType, err := d.GetScheme()
	if err != nil {
		return nil, err
	}
	log.Debug("opening connection type ", connType) // don't log password details in the DSN!
	switch connType {
	case constants.ConnectionTypeSnowflake:
		db, err = newSnowflakeConnection(log, &d)
	case constants.ConnectionTypeSqlite:
		db, err = newSqliteConnection(log, &d)
	default:
		db, err = newConnectionWithDsn(log, &d, connType)
	}
	return
}

func newConnectionWithDsn(log logger.Logger, d *shared.DsnConnectionDetails, connType string) (shared.Connector, error) {
	log.Info("Opening database connection: ", d)
	u, err := dburl.Parse(d.Dsn)
	if err != nil { // if the DSN could not be parsed...
		return nil, fmt.Errorf("error parsing DSN %q: %w", d.String(), err)
	}
	dialect, err := DialectFor(connType)
	if err != nil {
		return nil, err
	}
	conn := &shared.HpConnection{
		Dml:     &shared.DmlGeneratorTxtBatch{Dialect: dialect},
		Dialect: dialect,
		DbType:  connType,
	}
	// Open the connection.
	conn.DbSql, err = sql.Open(u.Driver, u.DSN)
	if err != nil {
		return nil, err
	}
	// Test the connection.
	if err = conn.DbSql.Ping(); err != nil {
		conn.Close()
		return nil, err
	}
	log.Info("Successful connection to: ", d)
	return conn, nil
}

func newSqliteConnection(log logger.Logger, d *shared.DsnConnectionDetails) (shared.Connector, error) {
	log.Info("Opening sqlite database: ", d.SqlitePath())
	dialect := NewSqliteDialect()
	conn := &shared.HpConnection{
		Dml:     &shared.DmlGeneratorTxtBatch{Dialect: dialect},
		Dialect: dialect,
		DbType:  constants.ConnectionTypeSqlite,
	}
	var err error
	conn.DbSql, err = sql.Open("sqlite", d.SqlitePath())
	if err != nil {
		return nil, err
	}
	conn.DbSql.SetMaxOpenConns(1) // sqlite allows one writer.
	if err = conn.DbSql.Ping(); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
