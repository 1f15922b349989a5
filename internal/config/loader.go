package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Client captures environment driven configuration for the sync client.
type Client struct {
	ServerURL  string
	WSURL      string
	APIToken   string
	EmployeeID string
	UndoLimit  int
}

// LoadClient parses client configuration from the process environment,
// applying defaults for optional fields and aggregating missing and invalid
// entries into one error.
func LoadClient() (Client, error) {
	cfg := Client{
		ServerURL: "http://localhost:8080",
		WSURL:     "ws://localhost:8080",
		UndoLimit: 0,
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 1)

	if v := strings.TrimSpace(os.Getenv("SLOTSYNC_SERVER_URL")); v != "" {
		cfg.ServerURL = v
	}
	if v := strings.TrimSpace(os.Getenv("SLOTSYNC_WS_URL")); v != "" {
		cfg.WSURL = v
	}
	cfg.APIToken = strings.TrimSpace(os.Getenv("SLOTSYNC_API_TOKEN"))

	if v := strings.TrimSpace(os.Getenv("SLOTSYNC_EMPLOYEE_ID")); v == "" {
		missing = append(missing, "SLOTSYNC_EMPLOYEE_ID")
	} else {
		cfg.EmployeeID = v
	}

	if v := strings.TrimSpace(os.Getenv("SLOTSYNC_UNDO_LIMIT")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			invalid = append(invalid, "SLOTSYNC_UNDO_LIMIT")
		} else {
			cfg.UndoLimit = limit
		}
	}

	if len(missing) > 0 {
		return Client{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Client{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// Server captures environment driven configuration for the reference
// development server.
type Server struct {
	HTTPPort     int
	SQLiteDSN    string
	APITokenHash string
}

// LoadServer parses server configuration from the process environment. The
// token hash is a bcrypt hash of the bearer token clients present; when
// empty the server accepts unauthenticated requests.
func LoadServer() (Server, error) {
	cfg := Server{
		HTTPPort:  8080,
		SQLiteDSN: "file:slotsyncd.db?_foreign_keys=on",
	}

	invalid := make([]string, 0, 1)

	if v := strings.TrimSpace(os.Getenv("SLOTSYNCD_HTTP_PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 {
			invalid = append(invalid, "SLOTSYNCD_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}
	if v := strings.TrimSpace(os.Getenv("SLOTSYNCD_SQLITE_DSN")); v != "" {
		cfg.SQLiteDSN = v
	}
	cfg.APITokenHash = strings.TrimSpace(os.Getenv("SLOTSYNCD_API_TOKEN_HASH"))

	if len(invalid) > 0 {
		return Server{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
