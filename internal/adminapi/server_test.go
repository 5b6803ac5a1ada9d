package adminapi

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/nec-oss/sliceengine/internal/engine"
	"github.com/nec-oss/sliceengine/internal/hostctl"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "slices.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	schema := `
		create table slices (number integer, id text);
		create table bindings (type integer, datapath_id integer, port integer,
			vid integer, mac integer, id text, slice_number integer);
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if _, err := db.Exec(`insert into slices (number, id) values (1, 'one')`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := db.Exec(
		`insert into bindings (type, datapath_id, port, vid, mac, id, slice_number) values (1, 1, 1, 1, 0, 'b', 1)`,
	); err != nil {
		t.Fatalf("seed: %v", err)
	}

	host := hostctl.NewLoop()
	t.Cleanup(host.Close)

	e := engine.New(nil)
	if err := e.Init(context.Background(), path, 0, host, nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { e.Finalize() })
	return e
}

func TestServerLookupSlice(t *testing.T) {
	s := NewServer(newTestEngine(t), nil)
	resp, err := s.lookupSlice(context.Background(), &LookupRequest{DatapathID: 1, Port: 1, VID: 1})
	if err != nil {
		t.Fatalf("lookupSlice: %v", err)
	}
	if !resp.Found || resp.SliceNumber != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestServerLookupSliceWithInvalidMAC(t *testing.T) {
	s := NewServer(newTestEngine(t), nil)
	bad := "not-a-mac"
	_, err := s.lookupSlice(context.Background(), &LookupRequest{MAC: &bad})
	if err == nil {
		t.Fatalf("expected an error for a malformed mac string")
	}
}

func TestServerListSlices(t *testing.T) {
	s := NewServer(newTestEngine(t), nil)
	resp, err := s.listSlices(context.Background(), &ListSlicesRequest{})
	if err != nil {
		t.Fatalf("listSlices: %v", err)
	}
	if len(resp.Slices) != 1 || resp.Slices[0].Number != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestServerStatus(t *testing.T) {
	s := NewServer(newTestEngine(t), nil)
	resp, err := s.status(context.Background(), &StatusRequest{})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !resp.Initialized {
		t.Fatalf("expected Initialized=true, got %+v", resp)
	}
}
