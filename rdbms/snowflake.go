package rdbms

import (
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/relloyd/sunglass-etl/constants"
	"github.com/relloyd/sunglass-etl/logger"
	"github.com/relloyd/sunglass-etl/rdbms/shared"
	"github.com/relloyd/sunglass-etl/schema"
	sf "github.com/snowflakedb/gosnowflake"
)

var reSnowflakePrefix = regexp.MustCompile("^snowflake://")

type SnowflakeConnectionDetails struct {
	Account   string `errorTxt:"Snowflake account" mandatory:"yes"`
	DBName    string `errorTxt:"Snowflake db name" mandatory:"yes"`
	Schema    string `errorTxt:"Snowflake schema"`
	User      string `errorTxt:"Snowflake username" mandatory:"yes"`
	Password  string `errorTxt:"Snowflake password" mandatory:"yes"`
	Warehouse string `errorTxt:"Snowflake warehouse"`
	RoleName  string `errorTxt:"Snowflake role name"`
}

func (d SnowflakeConnectionDetails) String() string {
	return fmt.Sprintf("%v:%v@%v/%v?schema=%v&warehouse=%v&role=%v",
		d.User,
		"xxxxxxx",
		d.Account,
		d.DBName,
		d.Schema,
		d.Warehouse,
		d.RoleName,
	)
}

type snowflakeDialect struct {
	baseDialect
}

func NewSnowflakeDialect() shared.Dialect {
	return snowflakeDialect{baseDialect{
		name: constants.ConnectionTypeSnowflake,
		types: map[schema.Kind]string{
			schema.KindInt:       "BIGINT",
			schema.KindFloat:     "FLOAT",
			schema.KindString:    "VARCHAR",
			schema.KindBool:      "BOOLEAN",
			schema.KindDate:      "DATE",
			schema.KindTimestamp: "TIMESTAMP_TZ",
		},
	}}
}

func (d snowflakeDialect) CreateTableSql(schemaName, table string, cols []shared.ColumnDef) []string {
	return []string{fmt.Sprintf("create table if not exists %v (%v)", d.QualifiedTable(schemaName, table), columnList(d, cols))}
}

func (d snowflakeDialect) RelationKindSql(schemaName, name string) (string, []interface{}) {
	return informationSchemaKindSql(d.Placeholder), []interface{}{schemaName, name}
}

// MaterializeSql uses create or replace, dropping first only when the object changes type.
func (d snowflakeDialect) MaterializeSql(schemaName, name, materialized, existingKind, body string) []string {
	qualified := d.QualifiedTable(schemaName, name)
	var stmts []string
	if materialized == RelationTable {
		if existingKind == RelationView {
			stmts = dropSql(qualified, existingKind, "")
		}
		return append(stmts, fmt.Sprintf("create or replace table %v as %v", qualified, body))
	}
	if existingKind == RelationTable {
		stmts = dropSql(qualified, existingKind, "")
	}
	return append(stmts, fmt.Sprintf("create or replace view %v as %v", qualified, body))
}

// newSnowflakeConnection opens the Snowflake database connection specified in d.
func newSnowflakeConnection(log logger.Logger, d *shared.DsnConnectionDetails) (shared.Connector, error) {
	dsn := reSnowflakePrefix.ReplaceAllString(d.Dsn, "")
	dialect := NewSnowflakeDialect()
	conn := &shared.HpConnection{
		Dml:     &shared.DmlGeneratorTxtBatch{Dialect: dialect},
		Dialect: dialect,
		DbType:  constants.ConnectionTypeSnowflake,
	}
	var err error
	conn.DbSql, err = sql.Open("snowflake", dsn)
	if err != nil {
		return nil, err
	}
	if err = conn.DbSql.Ping(); err != nil {
		conn.Close()
		return nil, err
	}
	log.Info("Successful database connection to Snowflake.")
	return conn, nil
}

// SnowflakeGetDSN constructs a DSN based on SnowflakeConnectionDetails.
// The prefix 'snowflake://' is added to the DSN.
func SnowflakeGetDSN(c *SnowflakeConnectionDetails) (string, error) {
	cfg := &sf.Config{
		Account:   c.Account,
		Database:  c.DBName,
		Schema:    c.Schema,
		User:      c.User,
		Password:  c.Password,
		Warehouse: c.Warehouse,
		Role:      c.RoleName,
	}
	dsn, err := sf.DSN(cfg)
	if err != nil {
		return "", err
	}
	if !reSnowflakePrefix.MatchString(dsn) { // if the prefix is missing...
		dsn = fmt.Sprintf("snowflake://%v", dsn)
	}
	return dsn, err
}

// SnowflakeParseDSN converts a Snowflake DSN into native connection details.
// The prefix 'snowflake://' is removed from the DSN if it exists.
func SnowflakeParseDSN(d string) (*SnowflakeConnectionDetails, error) {
	if !reSnowflakePrefix.MatchString(d) {
		return nil, errors.New("unsupported Snowflake DSN format")
	}
	d = strings.TrimPrefix(d, "snowflake://")
	cfg, err := sf.ParseDSN(d)
	if err != nil {
		return nil, err
	}
	retval := &SnowflakeConnectionDetails{
		User:      cfg.User,
		Password:  cfg.Password,
		Schema:    cfg.Schema,
		DBName:    cfg.Database,
		Account:   cfg.Account,
		RoleName:  cfg.Role,
		Warehouse: cfg.Warehouse,
	}
	if cfg.Region != "" { // if region exists in the parsed config...
		// Add it to our account settings.
		retval.Account = fmt.Sprintf("%v.%v", retval.Account, cfg.Region)
	}
	return retval, nil
}
