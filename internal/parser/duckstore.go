package parser

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"math"
	"os"

	"github.com/datalog-plotter/backend/internal/logger"
	"github.com/datalog-plotter/backend/internal/models"
	"github.com/marcboeker/go-duckdb"
)

// DuckStore persists a decoded datalog in a DuckDB file so it can be
// reloaded without decoding the CSV again. Readings are stored in long
// format, one row per (row, channel) pair; NaN readings are stored as NULL.
type DuckStore struct {
	db       *sql.DB
	dbPath   string
	readOnly bool
}

var duckPragmas = []string{
	"PRAGMA memory_limit='512MB'",
	"PRAGMA threads=2",
	"PRAGMA enable_progress_bar=false",
}

// NewDuckStoreAtPath creates an empty store with the datalog schema.
func NewDuckStoreAtPath(dbPath string) (*DuckStore, error) {
	log := logger.Get(nil)
	log.Debugf("[DuckStore] Creating database at: %s", dbPath)

	connector, err := duckdb.NewConnector(dbPath, execPragmas(true))
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}
	db := sql.OpenDB(connector)

	schema := []string{
		`CREATE TABLE channels (idx INTEGER PRIMARY KEY, name VARCHAR NOT NULL)`,
		`CREATE TABLE samples (row_idx INTEGER NOT NULL, channel_idx INTEGER NOT NULL, value DOUBLE)`,
		`CREATE TABLE meta (key VARCHAR PRIMARY KEY, value VARCHAR)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			os.Remove(dbPath)
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &DuckStore{db: db, dbPath: dbPath}, nil
}

// OpenDuckStoreReadOnly opens an existing store for loading.
func OpenDuckStoreReadOnly(dbPath string) (*DuckStore, error) {
	logger.Get(nil).Debugf("[DuckStore] Opening existing database (read-only) at: %s", dbPath)

	connector, err := duckdb.NewConnector(dbPath+"?access_mode=READ_ONLY", execPragmas(false))
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB connector: %w", err)
	}
	return &DuckStore{db: sql.OpenDB(connector), dbPath: dbPath, readOnly: true}, nil
}

func execPragmas(strict bool) func(driver.ExecerContext) error {
	return func(execer driver.ExecerContext) error {
		for _, pragma := range duckPragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				if strict {
					return err
				}
				logger.Get(nil).Warnf("[DuckStore] Pragma warning: %v", err)
			}
		}
		return nil
	}
}

// Path returns the database file location.
func (ds *DuckStore) Path() string {
	return ds.dbPath
}

// SaveDatalog writes every channel, reading and the info string.
func (ds *DuckStore) SaveDatalog(ctx context.Context, d *models.Datalog) error {
	if ds.readOnly {
		return fmt.Errorf("duck store %s is read-only", ds.dbPath)
	}

	tx, err := ds.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for i, name := range d.Channels {
		if _, err := tx.ExecContext(ctx, `INSERT INTO channels VALUES (?, ?)`, i, name); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert channel %q: %w", name, err)
		}
	}
	meta := map[string]string{
		"info": d.Info,
		"rows": fmt.Sprint(d.Len()),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta VALUES (?, ?)`, k, v); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert meta %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	conn, err := ds.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	err = conn.Raw(func(driverConn interface{}) error {
		dConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to duckdb.Conn")
		}
		appender, err := duckdb.NewAppenderFromConn(dConn, "", "samples")
		if err != nil {
			return fmt.Errorf("failed to create appender: %w", err)
		}
		defer appender.Close()

		for c, col := range d.Values {
			for r, v := range col {
				var value interface{} = v
				if math.IsNaN(v) {
					value = nil
				}
				if err := appender.AppendRow(int32(r), int32(c), value); err != nil {
					return fmt.Errorf("append row %d channel %d: %w", r, c, err)
				}
			}
		}
		return appender.Flush()
	})
	if err != nil {
		return fmt.Errorf("appender error: %w", err)
	}

	logger.Get(ctx).Debugf("[DuckStore] Saved %d rows x %d channels to %s", d.Len(), len(d.Channels), ds.dbPath)
	return nil
}

// LoadDatalog rebuilds the datalog saved by SaveDatalog.
func (ds *DuckStore) LoadDatalog(ctx context.Context) (*models.Datalog, error) {
	var info, rowsText string
	if err := ds.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'info'`).Scan(&info); err != nil {
		return nil, fmt.Errorf("read info: %w", err)
	}
	if err := ds.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'rows'`).Scan(&rowsText); err != nil {
		return nil, fmt.Errorf("read row count: %w", err)
	}
	var rowCount int
	if _, err := fmt.Sscan(rowsText, &rowCount); err != nil {
		return nil, fmt.Errorf("bad row count %q: %w", rowsText, err)
	}

	rows, err := ds.db.QueryContext(ctx, `SELECT name FROM channels ORDER BY idx`)
	if err != nil {
		return nil, fmt.Errorf("read channels: %w", err)
	}
	var channels []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		channels = append(channels, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	values := make([][]float64, len(channels))
	for c := range values {
		col := make([]float64, rowCount)
		for r := range col {
			col[r] = math.NaN()
		}
		values[c] = col
	}

	samples, err := ds.db.QueryContext(ctx, `SELECT row_idx, channel_idx, value FROM samples`)
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	defer samples.Close()
	for samples.Next() {
		var r, c int
		var v sql.NullFloat64
		if err := samples.Scan(&r, &c, &v); err != nil {
			return nil, err
		}
		if c < 0 || c >= len(values) || r < 0 || r >= rowCount {
			return nil, fmt.Errorf("sample (%d, %d) out of range", r, c)
		}
		if v.Valid {
			values[c][r] = v.Float64
		}
	}
	if err := samples.Err(); err != nil {
		return nil, err
	}

	return models.NewDatalog(channels, values, info), nil
}

// Close closes the database.
func (ds *DuckStore) Close() error {
	if ds.db == nil {
		return nil
	}
	return ds.db.Close()
}
