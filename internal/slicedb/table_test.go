package slicedb

import "testing"

func TestInsertDynamicPortBindingRequiresKnownSlice(t *testing.T) {
	tb := NewTable(nil)
	_, ok := tb.InsertDynamicPortBinding(1, 2, 3, 0x10, "test", 100)
	if ok {
		t.Fatalf("expected insert against an unknown slice number to fail")
	}
}

func TestInsertAndLookupDynamicPortBinding(t *testing.T) {
	tb := NewTable(nil)
	tb.Transact(func(v LockedView) {
		v.AddSlice(0x10, "slice-a", 100)
	})

	b, ok := tb.InsertDynamicPortBinding(1, 2, 3, 0x10, "dyn", 100)
	if !ok {
		t.Fatalf("expected insert to succeed")
	}
	if !b.Dynamic {
		t.Fatalf("expected inserted binding to be marked dynamic")
	}

	hit, ok := tb.LookupPortBinding(1, 2, 3)
	if !ok || hit.SliceNumber != 0x10 {
		t.Fatalf("expected lookup to find the inserted binding, got %+v ok=%v", hit, ok)
	}

	vid, ok := tb.LookupPortVID(0x10, 1, 2)
	if !ok || vid != 3 {
		t.Fatalf("expected port_slice_vid_map reverse lookup, got vid=%d ok=%v", vid, ok)
	}
}

func TestRefreshPortBindingUpdatesTimestampOnly(t *testing.T) {
	tb := NewTable(nil)
	tb.Transact(func(v LockedView) {
		v.AddSlice(1, "s", 0)
	})
	tb.InsertDynamicPortBinding(1, 1, 1, 1, "id", 100)

	if ok := tb.RefreshPortBinding(1, 1, 1, 500); !ok {
		t.Fatalf("expected refresh of an existing binding to succeed")
	}
	hit, _ := tb.LookupPortBinding(1, 1, 1)
	if hit.UpdatedAt != 500 {
		t.Fatalf("expected updated_at to be bumped to 500, got %d", hit.UpdatedAt)
	}

	if ok := tb.RefreshPortBinding(9, 9, 9, 500); ok {
		t.Fatalf("expected refresh of a missing binding to fail")
	}
}

func TestAgeDynamicPortBindingsOnlyTouchesDynamicEntries(t *testing.T) {
	tb := NewTable(nil)
	tb.Transact(func(v LockedView) {
		v.AddSlice(1, "s", 0)
		v.AddPortBinding(1, 1, 1, 1, "static", 0) // not dynamic
	})
	tb.InsertDynamicPortBinding(1, 2, 2, 1, "dyn", 0) // dynamic, updated_at=0

	n := tb.AgeDynamicPortBindings(4000, 3600)
	if n != 1 {
		t.Fatalf("expected exactly 1 binding aged out, got %d", n)
	}

	if _, ok := tb.LookupPortBinding(1, 1, 1); !ok {
		t.Fatalf("static binding must survive aging")
	}
	if _, ok := tb.LookupPortBinding(1, 2, 2); ok {
		t.Fatalf("expired dynamic binding must be gone")
	}
}

func TestDeleteDynamicPortSliceBindingsScopesToDatapathAndPort(t *testing.T) {
	tb := NewTable(nil)
	tb.Transact(func(v LockedView) {
		v.AddSlice(1, "s", 0)
	})
	tb.InsertDynamicPortBinding(1, 1, 10, 1, "a", 0)
	tb.InsertDynamicPortBinding(1, 1, 20, 1, "b", 0)
	tb.InsertDynamicPortBinding(1, 2, 30, 1, "c", 0)

	n := tb.DeleteDynamicPortSliceBindings(1, 1)
	if n != 2 {
		t.Fatalf("expected 2 bindings purged for (dp=1, port=1), got %d", n)
	}
	if _, ok := tb.LookupPortBinding(1, 2, 30); !ok {
		t.Fatalf("binding on a different port must survive")
	}
}

func TestSweepOrderPortMacThenMacThenPortThenSlices(t *testing.T) {
	tb := NewTable(nil)

	// Seed one slice referenced by a mac binding, plus one port_mac binding
	// on the same mac.
	tb.Transact(func(v LockedView) {
		v.AddSlice(1, "s1", 0)
		v.AddMACBinding(MAC{1, 2, 3, 4, 5, 6}, 1, "mac1", 0)
		v.AddPortMACBinding(9, 1, 1, MAC{1, 2, 3, 4, 5, 6}, 1, "pm1", 0)
	})
	// Dynamic port binding on the same slice, independently inserted.
	tb.InsertDynamicPortBinding(9, 2, 1, 1, "dyn", 0)

	var teardownMACs []MAC
	var teardownPorts []struct {
		dp   uint64
		port uint16
	}

	// Reconcile pass that finds nothing in the fresh store: everything not
	// re-added after ClearFoundInStore is unfounded.
	tb.Transact(func(v LockedView) {
		v.ClearFoundInStore()
		res := v.Sweep(
			func(mac MAC) { teardownMACs = append(teardownMACs, mac) },
			func(dp uint64, port uint16) {
				teardownPorts = append(teardownPorts, struct {
					dp   uint64
					port uint16
				}{dp, port})
			},
		)

		if len(res.PortMACDeleted) != 1 {
			t.Fatalf("expected 1 port_mac binding deleted, got %d", len(res.PortMACDeleted))
		}
		if len(res.MACDeleted) != 1 {
			t.Fatalf("expected 1 mac binding deleted, got %d", len(res.MACDeleted))
		}
		// The dynamic port binding must be cascaded too: this preserves the
		// original core's behavior of deleting every dynamic port binding
		// once any mac binding is cascaded, even when that specific binding
		// was never tied to the deleted mac (see DESIGN.md).
		if len(res.PortDeleted) != 1 {
			t.Fatalf("expected the dynamic port binding to cascade-delete, got %d", len(res.PortDeleted))
		}
		if len(res.SlicesDeleted) != 1 {
			t.Fatalf("expected the now-unreferenced slice to be deleted, got %d", len(res.SlicesDeleted))
		}
	})

	if len(teardownMACs) != 2 { // once from port_mac cascade, once from mac cascade
		t.Fatalf("expected 2 teardownMAC calls, got %d", len(teardownMACs))
	}
	if len(teardownPorts) != 1 {
		t.Fatalf("expected 1 teardownPort call, got %d", len(teardownPorts))
	}
}

func TestSweepRetainsSliceStillReferenced(t *testing.T) {
	tb := NewTable(nil)
	tb.Transact(func(v LockedView) {
		v.AddSlice(1, "s1", 0)
		v.AddPortBinding(9, 1, 1, 1, "static", 0)
	})

	tb.Transact(func(v LockedView) {
		v.ClearFoundInStore()
		// Re-mark the port binding as found, but not the slice itself: the
		// slice row vanished from the store this tick while a binding
		// referencing it is still present.
		v.AddPortBinding(9, 1, 1, 1, "static", 0)

		res := v.Sweep(nil, nil)
		if len(res.SlicesRetained) != 1 {
			t.Fatalf("expected the referenced slice to be retained, got deleted=%d retained=%d",
				len(res.SlicesDeleted), len(res.SlicesRetained))
		}
		if len(res.SlicesDeleted) != 0 {
			t.Fatalf("referenced slice must not be deleted")
		}
	})

	if _, ok := tb.LookupSlice(1); !ok {
		t.Fatalf("slice 1 must still exist after sweep retained it")
	}
}

func TestFinalizeClearsEveryIndex(t *testing.T) {
	tb := NewTable(nil)
	tb.Transact(func(v LockedView) {
		v.AddSlice(1, "s", 0)
		v.AddMACBinding(MAC{1, 2, 3, 4, 5, 6}, 1, "m", 0)
	})
	tb.InsertDynamicPortBinding(1, 1, 1, 1, "p", 0)

	tb.Finalize()

	if s := tb.SliceSnapshot(); len(s) != 0 {
		t.Fatalf("expected no slices after Finalize, got %d", len(s))
	}
	if _, ok := tb.LookupMACBinding(MAC{1, 2, 3, 4, 5, 6}); ok {
		t.Fatalf("expected mac binding to be cleared after Finalize")
	}
}

func TestMACSliceMapsExist(t *testing.T) {
	tb := NewTable(nil)
	tb.Transact(func(v LockedView) {
		v.AddSlice(1, "s", 0)
	})
	if tb.MACSliceMapsExist(1) {
		t.Fatalf("expected no mac slice maps yet")
	}
	tb.Transact(func(v LockedView) {
		v.AddMACBinding(MAC{0, 0, 0, 0, 0, 1}, 1, "m", 0)
	})
	if !tb.MACSliceMapsExist(1) {
		t.Fatalf("expected mac slice maps to exist after adding one")
	}
}
