// Package resolver implements the policy-driven slice lookup from spec
// §4.E.
package resolver

import (
	"fmt"
	"time"

	"github.com/nec-oss/sliceengine/internal/logx"
	"github.com/nec-oss/sliceengine/internal/slicedb"
)

// Mode bits, matching spec §6.4.
type Mode uint16

const (
	LooseMACBasedSlicing Mode = 1 << iota
	RestrictHostsOnPort
)

func (m Mode) looseMACBasedSlicing() bool { return m&LooseMACBasedSlicing != 0 }
func (m Mode) restrictHostsOnPort() bool  { return m&RestrictHostsOnPort != 0 }

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Resolver implements lookup_slice and its siblings (spec §4.E).
type Resolver struct {
	table *slicedb.Table
	mode  Mode
	log   *logx.Logger
	clock Clock
}

func New(table *slicedb.Table, mode Mode, log *logx.Logger, clock Clock) *Resolver {
	if log == nil {
		log = logx.Default
	}
	if clock == nil {
		clock = time.Now
	}
	return &Resolver{table: table, mode: mode, log: log, clock: clock}
}

func (r *Resolver) LooseMACBasedSlicingEnabled() bool { return r.mode.looseMACBasedSlicing() }
func (r *Resolver) RestrictHostsOnPortEnabled() bool  { return r.mode.restrictHostsOnPort() }

// Lookup implements lookup_slice(datapath_id, port, vid, mac_opt) (spec
// §4.E). mac == nil models the "no MAC" case.
func (r *Resolver) Lookup(datapathID uint64, port, vid uint16, mac *slicedb.MAC) (uint16, bool) {
	var sliceNumber uint16
	found := false

	if mac != nil {
		if hit, ok := r.table.LookupMACBinding(*mac); ok {
			sliceNumber = hit.SliceNumber
			found = true
			r.log.Debugf("resolver: slice found in mac-slice map (slice=%#x)", sliceNumber)

			if !r.mode.looseMACBasedSlicing() {
				if portHit, ok := r.table.LookupPortBinding(datapathID, port, vid); ok {
					if portHit.SliceNumber == sliceNumber {
						r.table.RefreshPortBinding(datapathID, port, vid, r.clock().Unix())
					}
				} else {
					id := fmt.Sprintf("%012x:%04x:%04x", datapathID, port, vid)
					r.table.InsertDynamicPortBinding(datapathID, port, vid, sliceNumber, id, r.clock().Unix())
				}
			}
		} else if r.mode.restrictHostsOnPort() {
			if hit, ok := r.table.LookupPortMACBinding(datapathID, port, vid, *mac); ok {
				sliceNumber = hit.SliceNumber
				found = true
				r.log.Debugf("resolver: slice found in port_mac-slice map (slice=%#x)", sliceNumber)
			}
		}
	}

	if !found && !r.mode.restrictHostsOnPort() {
		if hit, ok := r.table.LookupPortBinding(datapathID, port, vid); ok {
			sliceNumber = hit.SliceNumber
			found = true
			r.log.Debugf("resolver: slice found in port-slice map (slice=%#x)", sliceNumber)
		}
	}

	if !found {
		r.log.Debugf("resolver: no slice found")
		return slicedb.NotFound, false
	}

	// Defend invariant 1 under races with reconciliation: a hit slice
	// number must still name a live slice.
	if _, ok := r.table.LookupSlice(sliceNumber); !ok {
		r.log.Debugf("resolver: no slice found (slice %#x vanished)", sliceNumber)
		return slicedb.NotFound, false
	}

	return sliceNumber, true
}

// LookupByMAC implements lookup_slice_by_mac(mac): mac_slice_map only, no
// dynamic-binding side effects (spec §4.E).
func (r *Resolver) LookupByMAC(mac slicedb.MAC) (uint16, bool) {
	hit, ok := r.table.LookupMACBinding(mac)
	if !ok {
		return slicedb.NotFound, false
	}
	return hit.SliceNumber, true
}

// GetPortVID implements get_port_vid(slice_number, datapath_id, port)
// (spec §4.E).
func (r *Resolver) GetPortVID(sliceNumber uint16, datapathID uint64, port uint16) (uint16, bool) {
	return r.table.LookupPortVID(sliceNumber, datapathID, port)
}

// MACSliceMapsExist implements mac_slice_maps_exist(slice_number) (spec
// §4.E).
func (r *Resolver) MACSliceMapsExist(sliceNumber uint16) bool {
	return r.table.MACSliceMapsExist(sliceNumber)
}
