// Package connection implements the pesadb:// URL contract: parsing a
// connection URL and opening a catalog with the named database
// auto-created when absent.
package connection

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"pesadb/internal/dberr"
	"pesadb/internal/engine"
)

// DefaultDataDir is used when the URL does not carry a data_dir query
// parameter.
const DefaultDataDir = "data"

var databaseNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Info is the parsed content of a pesadb:// URL. Host is informational:
// the engine is single-node and file-backed.
type Info struct {
	Database string
	Host     string
	DataDir  string
}

// ParseURL parses pesadb://[host]/<database>[?data_dir=<path>].
func ParseURL(raw string) (*Info, error) {
	if !strings.HasPrefix(raw, "pesadb://") {
		return nil, dberr.New(dberr.KindExecution,
			"invalid connection URL %q; expected pesadb://localhost/database_name or pesadb:///database_name", raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, dberr.Wrap(dberr.KindExecution, err, "invalid connection URL %q", raw)
	}

	database := strings.Trim(u.Path, "/")
	if database == "" {
		return nil, dberr.New(dberr.KindExecution, "database name cannot be empty")
	}
	if !databaseNameRe.MatchString(database) {
		return nil, dberr.New(dberr.KindExecution,
			"database name may only contain letters, numbers, underscores, and hyphens")
	}

	host := u.Host
	if host == "" {
		host = "localhost"
	}

	dataDir := u.Query().Get("data_dir")
	if dataDir == "" {
		dataDir = DefaultDataDir
	}

	return &Info{Database: database, Host: host, DataDir: dataDir}, nil
}

// Conn is an open connection: a catalog plus the selected database.
type Conn struct {
	Info    *Info
	Catalog *engine.Catalog
}

// Connect parses the URL, opens the catalog under its data directory,
// and creates the database if it does not exist yet.
func Connect(rawURL string, logger *slog.Logger) (*Conn, error) {
	info, err := ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	catalog, err := engine.OpenCatalog(info.DataDir, logger)
	if err != nil {
		return nil, err
	}

	if !catalog.Exists(info.Database) {
		if _, err := catalog.Create(info.Database); err != nil {
			return nil, err
		}
	}

	return &Conn{Info: info, Catalog: catalog}, nil
}

// Close flushes the catalog.
func (c *Conn) Close() error {
	return c.Catalog.Close()
}
