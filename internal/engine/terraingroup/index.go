package terraingroup

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/Faultbox/midgard-terrain/internal/logger"
	"github.com/Faultbox/midgard-terrain/pkg/formats"
)

// SlotRecord describes the saved file of one slot.
type SlotRecord struct {
	X, Y      int
	Filename  string
	ModTime   time.Time
	MinHeight float32
	MaxHeight float32
}

// SlotIndex keeps a sqlite table of saved slot files, so a large group can
// be queried without opening every terrain.
type SlotIndex struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenIndex opens or creates the index database at path.
func OpenIndex(path string) (*SlotIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty index path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS slots (
		slot_key INTEGER PRIMARY KEY,
		x INTEGER NOT NULL,
		y INTEGER NOT NULL,
		filename TEXT NOT NULL,
		mod_time INTEGER NOT NULL,
		min_height REAL NOT NULL,
		max_height REAL NOT NULL
	);`); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SlotIndex{db: db, log: logger.Named("slotindex")}, nil
}

// Close closes the database.
func (ix *SlotIndex) Close() error {
	return ix.db.Close()
}

const insertSlot = `INSERT OR REPLACE INTO slots
	(slot_key, x, y, filename, mod_time, min_height, max_height)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

func recordArgs(r SlotRecord) []any {
	return []any{int64(PackIndex(r.X, r.Y)), r.X, r.Y, r.Filename, r.ModTime.UnixNano(), r.MinHeight, r.MaxHeight}
}

// Record stores r, replacing any earlier record of the slot.
func (ix *SlotIndex) Record(r SlotRecord) error {
	_, err := ix.db.Exec(insertSlot, recordArgs(r)...)
	if err != nil {
		return fmt.Errorf("record slot %d,%d: %w", r.X, r.Y, err)
	}
	return nil
}

// Remove forgets slot (x, y).
func (ix *SlotIndex) Remove(x, y int) error {
	_, err := ix.db.Exec(`DELETE FROM slots WHERE slot_key = ?`, int64(PackIndex(x, y)))
	return err
}

// Lookup returns the record of slot (x, y).
func (ix *SlotIndex) Lookup(x, y int) (SlotRecord, bool, error) {
	row := ix.db.QueryRow(`SELECT x, y, filename, mod_time, min_height, max_height
		FROM slots WHERE slot_key = ?`, int64(PackIndex(x, y)))
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SlotRecord{}, false, nil
	}
	if err != nil {
		return SlotRecord{}, false, err
	}
	return r, true, nil
}

// Slots returns every record, south row first.
func (ix *SlotIndex) Slots() ([]SlotRecord, error) {
	rows, err := ix.db.Query(`SELECT x, y, filename, mod_time, min_height, max_height
		FROM slots ORDER BY y, x`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SlotRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (SlotRecord, error) {
	var r SlotRecord
	var mod int64
	if err := s.Scan(&r.X, &r.Y, &r.Filename, &mod, &r.MinHeight, &r.MaxHeight); err != nil {
		return SlotRecord{}, err
	}
	r.ModTime = time.Unix(0, mod)
	return r, nil
}

// Rebuild replaces the index with the terrain files in dir whose names
// follow the prefix and extension. It returns how many were indexed.
func (ix *SlotIndex) Rebuild(dir, prefix, ext string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var records []SlotRecord
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		x, y, ok := parseFilename(e.Name(), prefix, ext)
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return 0, err
		}
		d, err := formats.LoadTerrainFile(filepath.Join(dir, e.Name()))
		if err != nil {
			ix.log.Warn("skipping unreadable terrain file",
				zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		lo, hi := heightRange(d.Heights)
		records = append(records, SlotRecord{
			X: x, Y: y, Filename: e.Name(), ModTime: info.ModTime(), MinHeight: lo, MaxHeight: hi,
		})
	}

	tx, err := ix.db.Begin()
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(`DELETE FROM slots`); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	for _, r := range records {
		if _, err := tx.Exec(insertSlot, recordArgs(r)...); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	ix.log.Info("slot index rebuilt", zap.String("dir", dir), zap.Int("slots", len(records)))
	return len(records), nil
}

func heightRange(h []float32) (lo, hi float32) {
	if len(h) == 0 {
		return 0, 0
	}
	return slices.Min(h), slices.Max(h)
}
