// Package store reads the external relational definition store described
// in spec §6.3: a local sqlite file with two tables, "slices" and
// "bindings". It is read-only — the engine never writes back to it
// (spec §1 Non-goals).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nec-oss/sliceengine/internal/slicedb"
)

// SliceRow mirrors one row of the "slices(number, id)" table.
type SliceRow struct {
	Number uint16
	ID     string
}

// BindingRow mirrors one row of the "bindings(type, datapath_id, port,
// vid, mac, id, slice_number)" table, with the 48-bit mac already decoded.
type BindingRow struct {
	Type        slicedb.BindingType
	DatapathID  uint64
	Port        uint16
	VID         uint16
	MAC         slicedb.MAC
	ID          string
	SliceNumber uint16
}

// Store opens and reads the sqlite-backed definition file on demand; it
// holds no connection between calls, matching spec §4.C ("The
// reconciliation pass opens and closes one database handle per
// invocation").
type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// Stat returns the definition file's modification time, for the mtime
// guard in spec §4.C step 1.
func (s *Store) Stat() (time.Time, error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

// Load opens the sqlite file and reads both tables in full, matching spec
// §4.C steps 3-4 (one select over every row of "slices" and one over every
// row of "bindings", each naming its columns explicitly). Any
// error aborts the whole load; the caller is expected to leave prior
// in-memory state untouched on error (spec §4.C "Failure semantics").
func (s *Store) Load(ctx context.Context) ([]SliceRow, []BindingRow, error) {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("store: open: %w", err)
	}
	defer db.Close()

	slices, err := s.loadSlices(ctx, db)
	if err != nil {
		return nil, nil, fmt.Errorf("store: load slices: %w", err)
	}

	bindings, err := s.loadBindings(ctx, db)
	if err != nil {
		return nil, nil, fmt.Errorf("store: load bindings: %w", err)
	}

	return slices, bindings, nil
}

func (s *Store) loadSlices(ctx context.Context, db *sql.DB) ([]SliceRow, error) {
	rows, err := db.QueryContext(ctx, "select number, id from slices")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SliceRow
	for rows.Next() {
		var r SliceRow
		if err := rows.Scan(&r.Number, &r.ID); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) loadBindings(ctx context.Context, db *sql.DB) ([]BindingRow, error) {
	rows, err := db.QueryContext(ctx, "select type, datapath_id, port, vid, mac, id, slice_number from bindings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BindingRow
	for rows.Next() {
		var (
			typ         uint8
			datapathID  int64
			port        uint16
			vid         uint16
			macU48      int64
			id          string
			sliceNumber uint16
		)
		if err := rows.Scan(&typ, &datapathID, &port, &vid, &macU48, &id, &sliceNumber); err != nil {
			return nil, err
		}
		out = append(out, BindingRow{
			Type:        slicedb.BindingType(typ),
			DatapathID:  uint64(datapathID),
			Port:        port,
			VID:         vid,
			MAC:         slicedb.MACFromUint48(uint64(macU48)),
			ID:          id,
			SliceNumber: sliceNumber,
		})
	}
	return out, rows.Err()
}
