// Package dynamicbinding implements the aging and explicit-purge halves of
// spec §4.D. The implicit-insert and refresh halves live on
// slicedb.Table directly since the resolver calls them inline during a
// lookup (spec §4.E); this package only owns the parts driven by the
// periodic aging tick and by the link-down path.
package dynamicbinding

import (
	"time"

	"github.com/nec-oss/sliceengine/internal/logx"
	"github.com/nec-oss/sliceengine/internal/slicedb"
)

// AgingInterval and Timeout match spec §4.D exactly (60s tick, 3600s TTL).
const (
	AgingInterval = 60 * time.Second
	Timeout       = 3600 // seconds
)

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Manager runs the aging sweep and the explicit purge operation.
type Manager struct {
	table *slicedb.Table
	log   *logx.Logger
	clock Clock
}

func New(table *slicedb.Table, log *logx.Logger, clock Clock) *Manager {
	if log == nil {
		log = logx.Default
	}
	if clock == nil {
		clock = time.Now
	}
	return &Manager{table: table, log: log, clock: clock}
}

// Age implements spec §4.D Aging: delete every dynamic port binding whose
// updated_at + 3600s < now.
func (m *Manager) Age() {
	now := m.clock().Unix()
	n := m.table.AgeDynamicPortBindings(now, Timeout)
	if n > 0 {
		m.log.Infof("dynamicbinding: aged out %d dynamic port binding(s)", n)
	}
}

// PurgePort implements spec §4.D Explicit purge /
// delete_dynamic_port_slice_bindings(dp, port), called from the link-down
// path.
func (m *Manager) PurgePort(datapathID uint64, port uint16) int {
	n := m.table.DeleteDynamicPortSliceBindings(datapathID, port)
	if n > 0 {
		m.log.Infof("dynamicbinding: purged %d dynamic port binding(s) (dp=%#x, port=%d)", n, datapathID, port)
	}
	return n
}
