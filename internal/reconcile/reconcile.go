// Package reconcile implements the periodic differential refresh from
// spec §4.C: stat the definition file, and on change, mark-and-sweep the
// in-memory tables against a fresh load of the store.
package reconcile

import (
	"context"
	"time"

	"github.com/nec-oss/sliceengine/internal/forwarding"
	"github.com/nec-oss/sliceengine/internal/logx"
	"github.com/nec-oss/sliceengine/internal/slicedb"
	"github.com/nec-oss/sliceengine/internal/store"
)

// Interval is the default reconciliation tick (spec §4.C "Runs every 2s").
const Interval = 2 * time.Second

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Loop drives the mark-and-sweep pass described in spec §4.C.
type Loop struct {
	table      *slicedb.Table
	store      *store.Store
	forwarding forwarding.Control
	log        *logx.Logger
	clock      Clock

	lastMtime time.Time
}

func New(table *slicedb.Table, st *store.Store, fwd forwarding.Control, log *logx.Logger, clock Clock) *Loop {
	if log == nil {
		log = logx.Default
	}
	if clock == nil {
		clock = time.Now
	}
	return &Loop{table: table, store: st, forwarding: fwd, log: log, clock: clock}
}

// LastMtime exposes slice_db_mtime for invariant checks and tests (spec §3
// invariant 8).
func (l *Loop) LastMtime() time.Time {
	return l.lastMtime
}

// Tick runs one reconciliation pass (spec §4.C steps 1-6). It is safe to
// call concurrently with resolver/aging operations; atomicity for steps
// 2-5 comes from slicedb.Table.Transact.
func (l *Loop) Tick(ctx context.Context) {
	mtime, err := l.store.Stat()
	if err != nil {
		l.log.Errorf("reconcile: failed to stat definition store: %v", err)
		return
	}

	if mtime.Equal(l.lastMtime) {
		l.log.Debugf("reconcile: slice database is not changed")
		return
	}

	l.log.Infof("reconcile: loading slice definitions")

	sliceRows, bindingRows, err := l.store.Load(ctx)
	if err != nil {
		// spec §4.C "Failure semantics": abort this pass, keep last-known
		// state and mtime, retry next tick.
		l.log.Errorf("reconcile: failed to load definition store: %v", err)
		return
	}

	now := l.clock().Unix()

	l.table.Transact(func(v slicedb.LockedView) {
		v.ClearFoundInStore()

		for _, row := range sliceRows {
			v.AddSlice(row.Number, row.ID, now)
		}
		for _, row := range bindingRows {
			switch row.Type {
			case slicedb.BindingPort:
				v.AddPortBinding(row.DatapathID, row.Port, row.VID, row.SliceNumber, row.ID, now)
			case slicedb.BindingMAC:
				v.AddMACBinding(row.MAC, row.SliceNumber, row.ID, now)
			case slicedb.BindingPortMAC:
				v.AddPortMACBinding(row.DatapathID, row.Port, row.VID, row.MAC, row.SliceNumber, row.ID, now)
			default:
				l.log.Errorf("reconcile: undefined binding type (type=%d)", row.Type)
			}
		}

		res := v.Sweep(l.teardownMAC, l.teardownPort)
		for _, b := range res.PortDeleted {
			l.log.Infof("reconcile: deleted port-slice binding (dp=%#x, port=%d, vid=%d, slice=%#x)",
				b.DatapathID, b.Port, b.VID, b.SliceNumber)
		}
		for _, b := range res.MACDeleted {
			l.log.Infof("reconcile: deleted mac-slice binding (mac=%s, slice=%#x)", b.MAC, b.SliceNumber)
		}
		for _, b := range res.PortMACDeleted {
			l.log.Infof("reconcile: deleted port_mac-slice binding (mac=%s, slice=%#x)", b.MAC, b.SliceNumber)
		}
		for _, s := range res.SlicesDeleted {
			l.log.Infof("reconcile: deleted slice entry (number=%#x, id=%s)", s.Number, s.ID)
		}
	})

	l.lastMtime = mtime
}

func (l *Loop) teardownMAC(mac slicedb.MAC) {
	if l.forwarding == nil {
		return
	}
	m := [6]byte(mac)
	l.forwarding.TeardownPathByMatch(forwarding.Match{SrcMAC: &m})
	l.forwarding.TeardownPathByMatch(forwarding.Match{DstMAC: &m})
}

func (l *Loop) teardownPort(datapathID uint64, port uint16) {
	if l.forwarding == nil {
		return
	}
	l.forwarding.TeardownPathByPort(datapathID, port)
}
