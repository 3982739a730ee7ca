// Package cloudsql resolves the run-history database connection string,
// either directly from DATABASE_URL or from Cloud SQL settings on Cloud Run.
package cloudsql

import (
	"fmt"
	"net/url"
)

// BuildDatabaseURL returns the PostgreSQL connection string described by the
// environment, or "" when no database is configured.
//
// DATABASE_URL wins when set. Otherwise INSTANCE_CONNECTION_NAME selects the
// Cloud SQL Unix socket mounted under /cloudsql, with DB_USER, DB_NAME and an
// optional DB_PASSWORD (omitted for IAM authentication).
func BuildDatabaseURL(getenv func(string) string) (string, error) {
	if dbURL := getenv("DATABASE_URL"); dbURL != "" {
		return dbURL, nil
	}

	instance := getenv("INSTANCE_CONNECTION_NAME")
	if instance == "" {
		return "", nil
	}

	user := getenv("DB_USER")
	name := getenv("DB_NAME")
	if user == "" || name == "" {
		return "", fmt.Errorf("DB_USER and DB_NAME must be set when using INSTANCE_CONNECTION_NAME")
	}

	connStr := fmt.Sprintf("host=/cloudsql/%s user=%s dbname=%s sslmode=disable", instance, user, name)
	if password := getenv("DB_PASSWORD"); password != "" {
		connStr += " password=" + password
	}
	return connStr, nil
}

// Describe summarises the connection for logging without credentials.
func Describe(getenv func(string) string) map[string]string {
	if dbURL := getenv("DATABASE_URL"); dbURL != "" {
		return map[string]string{
			"connection_type": "direct",
			"database_url":    Redact(dbURL),
		}
	}
	if instance := getenv("INSTANCE_CONNECTION_NAME"); instance != "" {
		return map[string]string{
			"connection_type": "cloud_sql",
			"instance":        instance,
			"user":            getenv("DB_USER"),
			"database":        getenv("DB_NAME"),
		}
	}
	return map[string]string{"connection_type": "none"}
}

// Redact masks the password in a postgres:// URL. Other strings are
// returned unchanged.
func Redact(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	if _, ok := u.User.Password(); !ok {
		return connStr
	}
	u.User = url.UserPassword(u.User.Username(), "xxxxx")
	return u.String()
}
