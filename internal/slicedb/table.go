package slicedb

import (
	"sync"

	"github.com/nec-oss/sliceengine/internal/logx"
)

// Table owns the five indexes described in spec §3 "Indexes". Go's
// built-in map with a comparable struct key is the idiomatic replacement
// for the original's hand-rolled, per-index hash/equality hash_table: the
// hash_table abstraction in the C core exists only because C has no
// built-in associative container, so there is nothing in the retrieval
// pack to "use" here beyond the language's own map type (see DESIGN.md).
//
// A single sync.RWMutex guards every index together, so that the
// mark-and-sweep reconciliation pass (spec §5, "the reconciliation sweep
// held under the writer lock for steps 2-5") is atomic from every other
// caller's perspective, matching the single-threaded cooperative model the
// spec describes.
type Table struct {
	mu sync.RWMutex
	log *logx.Logger

	slices         map[uint16]*Slice
	portSlice      map[portKey]*Binding
	portSliceVID   map[portVIDKey]*Binding
	macSlice       map[MAC]*Binding
	portMacSlice   map[portMACKey]*Binding
}

func NewTable(log *logx.Logger) *Table {
	if log == nil {
		log = logx.Default
	}
	return &Table{
		log:          log,
		slices:       make(map[uint16]*Slice),
		portSlice:    make(map[portKey]*Binding),
		portSliceVID: make(map[portVIDKey]*Binding),
		macSlice:     make(map[MAC]*Binding),
		portMacSlice: make(map[portMACKey]*Binding),
	}
}

// ---- read-side, public, individually locked -------------------------------

func (t *Table) LookupSlice(number uint16) (*Slice, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.slices[number]
	return s, ok
}

func (t *Table) LookupPortBinding(dp uint64, port, vid uint16) (*Binding, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.portSlice[portKey{dp, port, vid}]
	return b, ok
}

func (t *Table) LookupPortVID(sliceNumber uint16, dp uint64, port uint16) (uint16, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.portSliceVID[portVIDKey{dp, port, sliceNumber}]
	if !ok {
		return 0, false
	}
	return b.VID, true
}

func (t *Table) LookupMACBinding(mac MAC) (*Binding, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.macSlice[mac]
	return b, ok
}

func (t *Table) LookupPortMACBinding(dp uint64, port, vid uint16, mac MAC) (*Binding, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.portMacSlice[portMACKey{dp, port, vid, mac}]
	return b, ok
}

// MACSliceMapsExist implements spec §4.E mac_slice_maps_exist.
func (t *Table) MACSliceMapsExist(sliceNumber uint16) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.slices[sliceNumber]
	return ok && s.NMACSliceMaps > 0
}

// SliceSnapshot returns copies of all slices, for read-only introspection (the
// admin surface). It does not expose bindings, keeping the surface small.
func (t *Table) SliceSnapshot() []Slice {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Slice, 0, len(t.slices))
	for _, s := range t.slices {
		out = append(out, *s)
	}
	return out
}

// ---- single-operation mutators, public, individually locked ---------------

// InsertDynamicPortBinding implements the resolver's implicit-insert path
// (spec §4.D). It fails if the slice does not exist, matching
// add_port_slice_binding's "Invalid slice number" guard.
func (t *Table) InsertDynamicPortBinding(dp uint64, port, vid, sliceNumber uint16, id string, updatedAt int64) (*Binding, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addPortBindingLocked(dp, port, vid, sliceNumber, id, true, updatedAt)
}

// RefreshPortBinding bumps updated_at on an existing binding (spec §4.D
// Refresh / §4.E step 1.1).
func (t *Table) RefreshPortBinding(dp uint64, port, vid uint16, updatedAt int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.portSlice[portKey{dp, port, vid}]
	if !ok {
		return false
	}
	b.UpdatedAt = updatedAt
	return true
}

// AgeDynamicPortBindings deletes every dynamic port binding whose
// UpdatedAt+timeoutSeconds is before now (spec §4.D Aging).
func (t *Table) AgeDynamicPortBindings(now, timeoutSeconds int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var victims []portKey
	for k, b := range t.portSlice {
		if b.Dynamic && b.UpdatedAt+timeoutSeconds < now {
			victims = append(victims, k)
		}
	}
	for _, k := range victims {
		t.deletePortBindingLocked(k)
	}
	return len(victims)
}

// DeleteDynamicPortSliceBindings implements the explicit purge operation
// (spec §4.D / §6.4 delete_dynamic_port_slice_bindings).
func (t *Table) DeleteDynamicPortSliceBindings(dp uint64, port uint16) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var victims []portKey
	for k, b := range t.portSlice {
		if b.Dynamic && b.DatapathID == dp && b.Port == port {
			victims = append(victims, k)
		}
	}
	for _, k := range victims {
		t.deletePortBindingLocked(k)
	}
	return len(victims)
}

// Finalize empties every index (spec §3 Lifecycle / invariant P6).
func (t *Table) Finalize() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slices = make(map[uint16]*Slice)
	t.portSlice = make(map[portKey]*Binding)
	t.portSliceVID = make(map[portVIDKey]*Binding)
	t.macSlice = make(map[MAC]*Binding)
	t.portMacSlice = make(map[portMACKey]*Binding)
}

// ---- locked-assumed helpers, shared between single ops and Reconcile ------

func (t *Table) addPortBindingLocked(dp uint64, port, vid, sliceNumber uint16, id string, dynamic bool, now int64) (*Binding, bool) {
	slice, ok := t.slices[sliceNumber]
	if !ok {
		t.log.Errorf("slicedb: invalid slice number (%#x)", sliceNumber)
		return nil, false
	}
	_ = slice

	key := portKey{dp, port, vid}
	if found, ok := t.portSlice[key]; ok {
		found.FoundInStore = true
		return found, true
	}

	entry := &Binding{
		Type:         BindingPort,
		DatapathID:   dp,
		Port:         port,
		VID:          vid,
		SliceNumber:  sliceNumber,
		ID:           TruncateID(id),
		Dynamic:      dynamic,
		UpdatedAt:    now,
		FoundInStore: true,
	}
	t.portSlice[key] = entry
	t.portSliceVID[portVIDKey{dp, port, sliceNumber}] = entry
	return entry, true
}

func (t *Table) addMACBindingLocked(mac MAC, sliceNumber uint16, id string, now int64) (*Binding, bool) {
	slice, ok := t.slices[sliceNumber]
	if !ok {
		t.log.Errorf("slicedb: invalid slice number (%#x)", sliceNumber)
		return nil, false
	}

	if found, ok := t.macSlice[mac]; ok {
		found.FoundInStore = true
		return found, true
	}

	entry := &Binding{
		Type:         BindingMAC,
		MAC:          mac,
		SliceNumber:  sliceNumber,
		ID:           TruncateID(id),
		Dynamic:      false,
		UpdatedAt:    now,
		FoundInStore: true,
	}
	t.macSlice[mac] = entry
	slice.NMACSliceMaps++
	return entry, true
}

func (t *Table) addPortMACBindingLocked(dp uint64, port, vid uint16, mac MAC, sliceNumber uint16, id string, now int64) (*Binding, bool) {
	if _, ok := t.slices[sliceNumber]; !ok {
		t.log.Errorf("slicedb: invalid slice number (%#x)", sliceNumber)
		return nil, false
	}

	key := portMACKey{dp, port, vid, mac}
	if found, ok := t.portMacSlice[key]; ok {
		found.FoundInStore = true
		return found, true
	}

	entry := &Binding{
		Type:         BindingPortMAC,
		DatapathID:   dp,
		Port:         port,
		VID:          vid,
		MAC:          mac,
		SliceNumber:  sliceNumber,
		ID:           TruncateID(id),
		Dynamic:      false,
		UpdatedAt:    now,
		FoundInStore: true,
	}
	t.portMacSlice[key] = entry
	return entry, true
}

func (t *Table) addSliceLocked(number uint16, id string, now int64) *Slice {
	if found, ok := t.slices[number]; ok {
		found.FoundInStore = true
		return found
	}
	s := &Slice{Number: number, ID: TruncateID(id), FoundInStore: true}
	t.slices[number] = s
	return s
}

func (t *Table) deletePortBindingLocked(key portKey) {
	b, ok := t.portSlice[key]
	if !ok {
		return
	}
	delete(t.portSlice, key)
	delete(t.portSliceVID, portVIDKey{b.DatapathID, b.Port, b.SliceNumber})
}

func (t *Table) deleteMACBindingLocked(mac MAC) {
	b, ok := t.macSlice[mac]
	if !ok {
		return
	}
	delete(t.macSlice, mac)
	if s, ok := t.slices[b.SliceNumber]; ok && s.NMACSliceMaps > 0 {
		s.NMACSliceMaps--
	}
}

func (t *Table) deletePortMACBindingLocked(key portMACKey) {
	delete(t.portMacSlice, key)
}

// LockedView is handed out by Transact below, which holds the table's
// writer lock so package reconcile can run its multi-step mark-and-sweep
// pass as one atomic unit (spec §5). The table exports no raw Lock/Unlock,
// since that would let callers violate the invariants the locked* helpers
// enforce; external packages only ever see Transact and the LockedView it
// hands them.
type LockedView struct {
	t *Table
}

// AddSlice is the mark-and-sweep "add" path for a slices(...) row (spec
// §4.C step 4 / "add_slice_entry").
func (v LockedView) AddSlice(number uint16, id string, now int64) *Slice {
	return v.t.addSliceLocked(number, id, now)
}

func (v LockedView) AddPortBinding(dp uint64, port, vid, sliceNumber uint16, id string, now int64) (*Binding, bool) {
	return v.t.addPortBindingLocked(dp, port, vid, sliceNumber, id, false, now)
}

func (v LockedView) AddMACBinding(mac MAC, sliceNumber uint16, id string, now int64) (*Binding, bool) {
	return v.t.addMACBindingLocked(mac, sliceNumber, id, now)
}

func (v LockedView) AddPortMACBinding(dp uint64, port, vid uint16, mac MAC, sliceNumber uint16, id string, now int64) (*Binding, bool) {
	return v.t.addPortMACBindingLocked(dp, port, vid, mac, sliceNumber, id, now)
}

// ClearFoundInStore implements spec §4.C step 2 / invariant 6.
func (v LockedView) ClearFoundInStore() {
	for _, s := range v.t.slices {
		s.FoundInStore = false
	}
	for _, b := range v.t.portSlice {
		b.FoundInStore = false
	}
	for _, b := range v.t.macSlice {
		b.FoundInStore = false
	}
	for _, b := range v.t.portMacSlice {
		b.FoundInStore = false
	}
}

// SweepResult reports what the mark-and-sweep deletion pass did, for
// logging and tests.
type SweepResult struct {
	PortMACDeleted  []Binding
	MACDeleted      []Binding
	PortDeleted     []Binding
	SlicesDeleted   []Slice
	SlicesRetained  []Slice // found_in_store==false but still referenced
}

// Sweep implements spec §4.C step 5, in its mandated order: port_mac, then
// mac (tracking whether any mac binding was cascaded), then port (plain
// misses OR cascaded-dynamic), then slices (referential-safe). Once any mac
// binding is deleted in a pass, every dynamic port binding is deleted too,
// whichever mac it was derived from.
func (v LockedView) Sweep(teardownMAC func(mac MAC), teardownPort func(dp uint64, port uint16)) SweepResult {
	var res SweepResult
	t := v.t

	var pmVictims []portMACKey
	for k, b := range t.portMacSlice {
		if !b.FoundInStore {
			pmVictims = append(pmVictims, k)
		}
	}
	for _, k := range pmVictims {
		b := t.portMacSlice[k]
		res.PortMACDeleted = append(res.PortMACDeleted, *b)
		if teardownMAC != nil {
			teardownMAC(b.MAC)
		}
		t.deletePortMACBindingLocked(k)
	}

	macBindingDeleted := false
	var macVictims []MAC
	for k, b := range t.macSlice {
		if !b.FoundInStore {
			macVictims = append(macVictims, k)
		}
	}
	for _, k := range macVictims {
		b := t.macSlice[k]
		res.MACDeleted = append(res.MACDeleted, *b)
		if teardownMAC != nil {
			teardownMAC(b.MAC)
		}
		t.deleteMACBindingLocked(k)
		macBindingDeleted = true
	}

	var portVictims []portKey
	for k, b := range t.portSlice {
		if (!b.FoundInStore && !b.Dynamic) || (macBindingDeleted && b.Dynamic) {
			portVictims = append(portVictims, k)
		}
	}
	for _, k := range portVictims {
		b := t.portSlice[k]
		res.PortDeleted = append(res.PortDeleted, *b)
		if teardownPort != nil {
			teardownPort(b.DatapathID, b.Port)
		}
		t.deletePortBindingLocked(k)
	}

	for number, s := range t.slices {
		if s.FoundInStore {
			continue
		}
		if referenced := v.sliceReferenced(number); referenced {
			v.t.log.Errorf("slicedb: slice %#x still has bindings, skipping delete (invariant 1)", number)
			res.SlicesRetained = append(res.SlicesRetained, *s)
			continue
		}
		res.SlicesDeleted = append(res.SlicesDeleted, *s)
		delete(t.slices, number)
	}

	return res
}

func (v LockedView) sliceReferenced(number uint16) bool {
	for _, b := range v.t.portSlice {
		if b.SliceNumber == number {
			return true
		}
	}
	for _, b := range v.t.macSlice {
		if b.SliceNumber == number {
			return true
		}
	}
	for _, b := range v.t.portMacSlice {
		if b.SliceNumber == number {
			return true
		}
	}
	return false
}

// Transact runs fn with the table's writer lock held for its whole
// duration, giving the reconciliation loop the atomicity spec §5 requires
// ("the reconciliation sweep held under the writer lock for steps 2-5").
func (t *Table) Transact(fn func(v LockedView)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(LockedView{t: t})
}
