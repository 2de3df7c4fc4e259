package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"pesadb/internal/dberr"
)

// databaseNameRe is the accepted shape of a database name.
var databaseNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Catalog is the registry of named databases and the owner of the
// on-disk layout: <data_dir>/catalog.json lists database names and
// <data_dir>/<name>.json holds each database's snapshot.
type Catalog struct {
	dataDir   string
	databases map[string]*Database
	logger    *slog.Logger
}

// OpenCatalog loads the catalog from dataDir, creating the directory if
// needed. Databases that fail to load are skipped with a warning so one
// corrupt snapshot does not take the whole catalog down.
func OpenCatalog(dataDir string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, dberr.Wrap(dberr.KindIO, err, "create data directory %q", dataDir)
	}

	c := &Catalog{
		dataDir:   dataDir,
		databases: make(map[string]*Database),
		logger:    logger,
	}

	names, err := c.readMetadata()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return c, nil
	}

	for _, name := range names {
		db, err := c.loadDatabase(name)
		if err != nil {
			c.logger.Warn("skipping database snapshot",
				"database", name, "error", err)
			continue
		}
		c.databases[name] = db
	}
	return c, nil
}

// DataDir returns the catalog's root data directory.
func (c *Catalog) DataDir() string { return c.dataDir }

// Create registers a new database and persists both the catalog
// metadata and the database's (empty) snapshot.
func (c *Catalog) Create(name string) (*Database, error) {
	if !databaseNameRe.MatchString(name) {
		return nil, dberr.New(dberr.KindSchema,
			"database name %q may only contain letters, numbers, underscores, and hyphens", name)
	}
	if _, exists := c.databases[name]; exists {
		return nil, dberr.New(dberr.KindSchema, "database '%s' already exists", name)
	}

	db := NewDatabase(name)
	c.databases[name] = db

	if err := c.saveMetadata(); err != nil {
		delete(c.databases, name)
		return nil, err
	}
	if err := c.Save(name); err != nil {
		delete(c.databases, name)
		return nil, err
	}
	return db, nil
}

// Get looks a database up by name.
func (c *Catalog) Get(name string) (*Database, error) {
	db, ok := c.databases[name]
	if !ok {
		return nil, dberr.New(dberr.KindLookup, "database '%s' does not exist", name)
	}
	return db, nil
}

// Exists reports whether the database is registered.
func (c *Catalog) Exists(name string) bool {
	_, ok := c.databases[name]
	return ok
}

// Drop removes a database from the catalog and deletes its snapshot.
func (c *Catalog) Drop(name string) error {
	if _, ok := c.databases[name]; !ok {
		return dberr.New(dberr.KindLookup, "database '%s' does not exist", name)
	}
	delete(c.databases, name)

	if err := os.Remove(c.databasePath(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return dberr.Wrap(dberr.KindIO, err, "remove snapshot of database '%s'", name)
	}
	return c.saveMetadata()
}

// Names lists the registered databases, sorted.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.databases))
	for name := range c.databases {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Save writes the named database's snapshot atomically: temp file in
// the same directory, fsync, rename over the target.
func (c *Catalog) Save(name string) error {
	db, ok := c.databases[name]
	if !ok {
		return dberr.New(dberr.KindLookup, "database '%s' does not exist", name)
	}
	data, err := db.MarshalSnapshot()
	if err != nil {
		return err
	}
	return writeFileAtomic(c.databasePath(name), data)
}

// Close flushes every database and the catalog metadata.
func (c *Catalog) Close() error {
	var firstErr error
	for _, name := range c.Names() {
		if err := c.Save(name); err != nil {
			c.logger.Error("flush database", "database", name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if err := c.saveMetadata(); err != nil {
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Catalog) databasePath(name string) string {
	return filepath.Join(c.dataDir, name+".json")
}

func (c *Catalog) metadataPath() string {
	return filepath.Join(c.dataDir, "catalog.json")
}

type catalogDoc struct {
	Databases []string `json:"databases"`
}

func (c *Catalog) readMetadata() ([]string, error) {
	data, err := os.ReadFile(c.metadataPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, dberr.Wrap(dberr.KindIO, err, "read catalog metadata")
	}
	var doc catalogDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, dberr.Wrap(dberr.KindIO, err, "invalid catalog metadata")
	}
	return doc.Databases, nil
}

func (c *Catalog) saveMetadata() error {
	doc := catalogDoc{Databases: c.Names()}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return dberr.Wrap(dberr.KindIO, err, "encode catalog metadata")
	}
	return writeFileAtomic(c.metadataPath(), data)
}

func (c *Catalog) loadDatabase(name string) (*Database, error) {
	data, err := os.ReadFile(c.databasePath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, dberr.New(dberr.KindIO, "database file not found: %s", c.databasePath(name))
		}
		return nil, dberr.Wrap(dberr.KindIO, err, "read snapshot of database '%s'", name)
	}
	db, err := UnmarshalSnapshot(data)
	if err != nil {
		return nil, err
	}
	// The file name is authoritative for the registry key.
	if db.Name == "" {
		db.Name = name
	}
	return db, nil
}

// writeFileAtomic writes data to path via a sibling temporary file that
// is synced and renamed over the target. On any failure the temporary
// file is removed and the target is left untouched.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return dberr.Wrap(dberr.KindIO, err, "create temporary file in %q", dir)
	}
	tmpName := tmp.Name()

	cleanup := func(err error, what string) error {
		tmp.Close()
		os.Remove(tmpName)
		return dberr.Wrap(dberr.KindIO, err, "%s %q", what, path)
	}

	if _, err := tmp.Write(data); err != nil {
		return cleanup(err, "write")
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err, "sync")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return dberr.Wrap(dberr.KindIO, err, "close %q", path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return dberr.Wrap(dberr.KindIO, err, "rename into %q", path)
	}
	return nil
}

// String implements fmt.Stringer for diagnostics.
func (c *Catalog) String() string {
	return fmt.Sprintf("Catalog(dir=%s, databases=%d)", c.dataDir, len(c.databases))
}
