package shared

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/sunglass-etl/constants"
	"github.com/xo/dburl"
)

// schemeAliases maps URL schemes to the connection types we support.
var schemeAliases = map[string]string{
	"postgres":   constants.ConnectionTypePostgres,
	"postgresql": constants.ConnectionTypePostgres,
	"pg":         constants.ConnectionTypePostgres,
	"pgsql":      constants.ConnectionTypePostgres,
	"sqlserver":  constants.ConnectionTypeSqlServer,
	"mssql":      constants.ConnectionTypeSqlServer,
	"ms":         constants.ConnectionTypeSqlServer,
	"snowflake":  constants.ConnectionTypeSnowflake,
	"sqlite":     constants.ConnectionTypeSqlite,
	"sqlite3":    constants.ConnectionTypeSqlite,
	"file":       constants.ConnectionTypeSqlite,
}

// DsnConnectionDetails is a simple struct to hold a DSN only.
type DsnConnectionDetails struct {
	Dsn string `errorTxt:"data source name i.e. connect string" mandatory:"yes"`
}

// String returns the DSN with redacted password.
func (d DsnConnectionDetails) String() string {
	scheme, err := d.GetScheme()
	if err != nil {
		return "<invalid DSN>"
	}
	switch scheme {
	case constants.ConnectionTypeSqlite:
		return d.Dsn
	case constants.ConnectionTypeSnowflake:
		// The gosnowflake DSN is user:password@account/db, not a URL dburl can parse.
		rest := strings.TrimPrefix(d.Dsn, "snowflake://")
		if at := strings.LastIndex(rest, "@"); at >= 0 {
			user := rest[:at]
			if colon := strings.Index(user, ":"); colon >= 0 {
				user = user[:colon] + ":xxxxx"
			}
			return "snowflake://" + user + rest[at:]
		}
		return d.Dsn
	}
	u, err := dburl.Parse(d.Dsn)
	if err != nil {
		return "<invalid DSN>"
	}
	return u.Redacted()
}

// GetScheme returns the connection type of the DSN, one of the constants.ConnectionType* values.
func (d DsnConnectionDetails) GetScheme() (string, error) {
	if d.Dsn == "" { // if the Dsn is invalid...
		return "", errors.New("DSN not found")
	}
	i := strings.Index(d.Dsn, ":")
	if i <= 0 {
		return "", fmt.Errorf("DSN %q has no scheme", d.Dsn)
	}
	scheme := strings.ToLower(d.Dsn[:i])
	t, ok := schemeAliases[scheme]
	if !ok {
		return "", fmt.Errorf("unsupported database type, %q", scheme)
	}
	return t, nil
}

// SqlitePath returns the database file of a sqlite DSN.
func (d DsnConnectionDetails) SqlitePath() string {
	for _, prefix := range []string{"sqlite3://", "sqlite://", "sqlite3:", "sqlite:", "file://"} {
		if strings.HasPrefix(strings.ToLower(d.Dsn), prefix) {
			return d.Dsn[len(prefix):]
		}
	}
	return d.Dsn
}
