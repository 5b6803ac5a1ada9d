// Package engine wires components A-E to the host controller's periodic
// event registry and fd-readiness registry, and exposes the public API of
// spec §6.4 (including the file-modification watcher pair,
// add_file_modification_watch/delete_file_modification_watch). It is the
// "SliceEngine" value spec §9 asks for in place of the original's four
// process-wide globals.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nec-oss/sliceengine/internal/dynamicbinding"
	"github.com/nec-oss/sliceengine/internal/forwarding"
	"github.com/nec-oss/sliceengine/internal/fswatch"
	"github.com/nec-oss/sliceengine/internal/hostctl"
	"github.com/nec-oss/sliceengine/internal/logx"
	"github.com/nec-oss/sliceengine/internal/reconcile"
	"github.com/nec-oss/sliceengine/internal/resolver"
	"github.com/nec-oss/sliceengine/internal/slicedb"
	"github.com/nec-oss/sliceengine/internal/store"
)

// Errors matching the configuration-error taxonomy of spec §7.
var (
	ErrAlreadyInitialized = errors.New("engine: already initialized")
	ErrNotInitialized     = errors.New("engine: not initialized")
	ErrEmptyPath          = errors.New("engine: slice database path must be specified")
	ErrNoController       = errors.New("engine: host controller must be specified")
)

// Engine is the top-level value a controller embeds. Unlike the original
// C core's four globals (slice_db, slice_db_file, last_slice_db_mtime,
// policy flags), every field here is owned by one Engine instance — spec
// §9 "Re-architect as a SliceEngine ... Do not reintroduce hidden
// singletons".
type Engine struct {
	mu          sync.Mutex
	initialized bool

	table      *slicedb.Table
	resolver   *resolver.Resolver
	reconcile  *reconcile.Loop
	dynamic    *dynamicbinding.Manager
	store      *store.Store
	forwarding forwarding.Control
	watcher    *fswatch.Registry
	log        *logx.Logger

	cancelReconcile func()
	cancelAging     func()
}

// New constructs an uninitialized Engine. Call Init to bring it up.
func New(log *logx.Logger) *Engine {
	if log == nil {
		log = logx.Default
	}
	return &Engine{log: log}
}

// Init implements init_slice(file_path, mode, controller) (spec §4.F /
// §6.4). It verifies its arguments, builds the five indexes, wires a
// file-modification watcher onto the same host controller, runs one
// synchronous reconciliation pass, and registers the 2s/60s periodic
// callbacks.
func (e *Engine) Init(ctx context.Context, filePath string, mode resolver.Mode, host hostctl.Controller, fwd forwarding.Control) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		e.log.Errorf("engine: already initialized")
		return ErrAlreadyInitialized
	}
	if filePath == "" {
		e.log.Errorf("engine: slice database must be specified")
		return ErrEmptyPath
	}
	if host == nil {
		e.log.Errorf("engine: host controller must be specified")
		return ErrNoController
	}
	if fwd == nil {
		fwd = forwarding.NoopControl{Log: e.log}
	}

	e.table = slicedb.NewTable(e.log)
	e.store = store.New(filePath)
	e.forwarding = fwd
	e.resolver = resolver.New(e.table, mode, e.log, nil)
	e.reconcile = reconcile.New(e.table, e.store, e.forwarding, e.log, nil)
	e.dynamic = dynamicbinding.New(e.table, e.log, nil)
	e.watcher = fswatch.New(host, e.log)

	// One synchronous reconciliation pass before returning, per spec §4.F.
	e.reconcile.Tick(ctx)

	e.cancelReconcile = host.RegisterPeriodic(reconcile.Interval, func() { e.reconcile.Tick(ctx) })
	e.cancelAging = host.RegisterPeriodic(dynamicbinding.AgingInterval, e.dynamic.Age)

	e.initialized = true
	return nil
}

// Finalize implements finalize_slice() (spec §4.F / §6.4): it empties every
// index. The definition-store path and the host controller stay referenced
// by the engine's sub-components, and watches added through
// AddFileModificationWatch stay registered. Periodic-callback deregistration is the controller's concern per spec
// §4.F, but we cancel our own registrations defensively since Go makes
// that cheap and safe to call twice.
func (e *Engine) Finalize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return ErrNotInitialized
	}

	if e.cancelReconcile != nil {
		e.cancelReconcile()
	}
	if e.cancelAging != nil {
		e.cancelAging()
	}

	e.table.Finalize()
	e.initialized = false
	return nil
}

// LookupSlice implements lookup_slice(...) (spec §4.E / §6.4).
func (e *Engine) LookupSlice(datapathID uint64, port, vid uint16, mac *slicedb.MAC) (uint16, bool) {
	return e.resolver.Lookup(datapathID, port, vid, mac)
}

// LookupSliceByMAC implements lookup_slice_by_mac(mac).
func (e *Engine) LookupSliceByMAC(mac slicedb.MAC) (uint16, bool) {
	return e.resolver.LookupByMAC(mac)
}

// GetPortVID implements get_port_vid(slice_number, datapath_id, port).
func (e *Engine) GetPortVID(sliceNumber uint16, datapathID uint64, port uint16) (uint16, bool) {
	return e.resolver.GetPortVID(sliceNumber, datapathID, port)
}

// MACSliceMapsExist implements mac_slice_maps_exist(slice).
func (e *Engine) MACSliceMapsExist(sliceNumber uint16) bool {
	return e.resolver.MACSliceMapsExist(sliceNumber)
}

// DeleteDynamicPortSliceBindings implements
// delete_dynamic_port_slice_bindings(dp, port).
func (e *Engine) DeleteDynamicPortSliceBindings(datapathID uint64, port uint16) int {
	return e.dynamic.PurgePort(datapathID, port)
}

// LooseMACBasedSlicingEnabled implements loose_mac_based_slicing_enabled().
func (e *Engine) LooseMACBasedSlicingEnabled() bool {
	return e.resolver.LooseMACBasedSlicingEnabled()
}

// RestrictHostsOnPortEnabled exposes the second mode flag alongside the
// first, mirroring the original core's two independent accessors (spec
// SUPPLEMENTED FEATURES #2).
func (e *Engine) RestrictHostsOnPortEnabled() bool {
	return e.resolver.RestrictHostsOnPortEnabled()
}

// AddFileModificationWatch implements add_file_modification_watch(path,
// cb, user_data) (spec §4.A / §6.4), using the fd-readiness registry of the
// same host controller whose periodic registry drives reconciliation and
// aging.
func (e *Engine) AddFileModificationWatch(path string, cb fswatch.Callback, userData interface{}) bool {
	return e.watcher.Add(path, cb, userData)
}

// ReconcileNow runs one reconciliation pass immediately, outside the 2s
// tick. It exists so a watcher callback registered via
// AddFileModificationWatch (e.g. on the slice-definition file itself) can
// ask for a prompt refresh instead of waiting for the next periodic tick —
// the pairing spec §2 describes as "(A) lets other parts of the
// controller re-read on-disk config files".
func (e *Engine) ReconcileNow(ctx context.Context) {
	e.reconcile.Tick(ctx)
}

// DeleteFileModificationWatch implements delete_file_modification_watch(path)
// (spec §4.A / §6.4).
func (e *Engine) DeleteFileModificationWatch(path string) bool {
	return e.watcher.Delete(path)
}

// Slices returns a read-only snapshot of every slice entry, for the admin
// surface.
func (e *Engine) Slices() []slicedb.Slice {
	return e.table.SliceSnapshot()
}

// LastReconcileMtime exposes slice_db_mtime (spec invariant 8).
func (e *Engine) LastReconcileMtime() time.Time {
	return e.reconcile.LastMtime()
}

// Initialized reports whether Init has run without a matching Finalize.
func (e *Engine) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}
