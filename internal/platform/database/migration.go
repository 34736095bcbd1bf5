package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	pkgerrors "github.com/pkg/errors"
)

var migrationFilePattern = regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)

// migrationLogger adapts ectologger to migrate's Logger.
type migrationLogger struct {
	logger ectologger.Logger
}

func (l migrationLogger) Verbose() bool {
	return false
}

func (l migrationLogger) Printf(format string, v ...any) {
	l.logger.Debugf(strings.TrimSuffix(format, "\n"), v...)
}

// MigrationConfig controls how the schema in db/pg is applied.
type MigrationConfig struct {
	FolderPath string
	// Version pins the schema to a version; zero means latest.
	Version uint
	// Force marks the schema clean at this version before migrating.
	Force int
	// AutoRollback forces a dirty schema back to the version it started at.
	AutoRollback bool
}

// SchemaStatus reports the applied schema version.
type SchemaStatus struct {
	Version uint `json:"version"`
	Latest  int  `json:"latest"`
	Dirty   bool `json:"dirty"`
}

// MigrationService applies the SQL schema migrations with golang-migrate.
type MigrationService struct {
	config MigrationConfig
	logger ectologger.Logger
}

func NewMigrationService(logger ectologger.Logger, config MigrationConfig) *MigrationService {
	return &MigrationService{
		config: config,
		logger: logger,
	}
}

// folder resolves the migration folder relative to the working directory.
func (ms *MigrationService) folder() string {
	if filepath.IsAbs(ms.config.FolderPath) {
		return ms.config.FolderPath
	}
	if _, err := os.Stat(ms.config.FolderPath); err == nil {
		return ms.config.FolderPath
	}
	wd, _ := os.Getwd()
	return filepath.Join(wd, ms.config.FolderPath)
}

func (ms *MigrationService) open(db DB, databaseName string) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db.Raw(), &postgres.Config{DatabaseName: databaseName})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create postgres migration driver")
	}
	return ms.openWithDriver(databaseName, driver)
}

func (ms *MigrationService) openWithDriver(databaseName string, driver migratedb.Driver) (*migrate.Migrate, error) {
	folder := ms.folder()
	if _, err := os.Stat(folder); err != nil {
		return nil, pkgerrors.Wrapf(err, "migration folder %s does not exist", folder)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+folder, databaseName, driver)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create migrate instance")
	}
	m.Log = migrationLogger{logger: ms.logger}
	return m, nil
}

// MigrateDB applies every pending migration, or migrates to the pinned version.
func (ms *MigrationService) MigrateDB(ctx context.Context, db DB, databaseName string) error {
	m, err := ms.open(db, databaseName)
	if err != nil {
		ms.logger.WithContext(ctx).WithError(err).WithField("database", databaseName).Error("Failed to open schema migrations")
		return err
	}
	return ms.apply(ctx, m)
}

// Steps migrates n versions up (positive) or down (negative).
func (ms *MigrationService) Steps(ctx context.Context, db DB, databaseName string, n int) error {
	m, err := ms.open(db, databaseName)
	if err != nil {
		return err
	}
	if err := m.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		ms.logger.WithContext(ctx).WithError(err).WithField("steps", n).Error("Failed to step schema migrations")
		return err
	}
	return nil
}

// Status reports the applied and latest available schema versions.
func (ms *MigrationService) Status(ctx context.Context, db DB, databaseName string) (*SchemaStatus, error) {
	m, err := ms.open(db, databaseName)
	if err != nil {
		return nil, err
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, err
	}
	latest, err := latestVersion(ms.folder())
	if err != nil {
		ms.logger.WithContext(ctx).WithError(err).Warn("Failed to read latest migration version")
	}

	return &SchemaStatus{Version: version, Latest: latest, Dirty: dirty}, nil
}

func (ms *MigrationService) apply(ctx context.Context, m *migrate.Migrate) error {
	logger := ms.logger.WithContext(ctx)

	if ms.config.Force != 0 {
		if err := m.Force(ms.config.Force); err != nil {
			logger.WithError(err).Errorf("Failed to force schema to version %d", ms.config.Force)
			return err
		}
	}

	startVersion, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logger.WithError(err).Warn("Failed to read schema version")
	}

	started := time.Now()
	if ms.config.Version != 0 {
		err = m.Migrate(ms.config.Version)
	} else {
		err = m.Up()
	}

	switch {
	case err == nil:
		logger.WithField("elapsed", time.Since(started).String()).Info("Applied schema migrations")
		return nil
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("Schema is up to date")
		return nil
	case strings.Contains(err.Error(), "no migration found for version"):
		// the database is ahead of this build's migration folder
		latest, lerr := latestVersion(ms.folder())
		if lerr != nil {
			return lerr
		}
		logger.Warnf("No migration found for version %d, forcing schema to %d", startVersion, latest)
		return m.Force(latest)
	}

	logger.WithError(err).Error("Schema migration failed")

	version, dirty, verr := m.Version()
	if verr != nil || !dirty || !ms.config.AutoRollback {
		return err
	}

	target := int(startVersion)
	if target == 0 {
		target = int(version) - 1
	}
	logger.Warnf("Schema is dirty at version %d, forcing back to %d", version, target)
	if ferr := m.Force(target); ferr != nil {
		logger.WithError(ferr).Errorf("Failed to force schema to version %d", target)
		return ferr
	}

	// the migration still failed, so startup must stop
	return err
}

// latestVersion returns the highest NNN_*.up.sql version in folder.
func latestVersion(folder string) (int, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return 0, err
	}

	var versions []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := migrationFilePattern.FindStringSubmatch(entry.Name())
		if len(matches) < 2 {
			continue
		}
		v, err := strconv.Atoi(matches[1])
		if err != nil {
			return 0, err
		}
		versions = append(versions, v)
	}

	if len(versions) == 0 {
		return 0, fmt.Errorf("no migration files found in %s", folder)
	}

	sort.Ints(versions)
	return versions[len(versions)-1], nil
}
