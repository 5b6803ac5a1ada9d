// Package slicedb holds the slicing engine's core entities (Slice,
// Binding) and the five indexed tables described in spec §3-§4.B.
package slicedb

import "fmt"

// BindingType tags which variant a Binding record is.
type BindingType uint8

const (
	BindingPort    BindingType = 0x01
	BindingMAC     BindingType = 0x02
	BindingPortMAC BindingType = 0x04
)

func (t BindingType) String() string {
	switch t {
	case BindingPort:
		return "PORT"
	case BindingMAC:
		return "MAC"
	case BindingPortMAC:
		return "PORT_MAC"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// NotFound is the sentinel slice number returned by lookups that miss,
// matching the original core's SLICE_NOT_FOUND constant.
const NotFound uint16 = 0

// maxIDBytes is the payload length (excluding the NUL terminator) both
// id fields are truncated to, per spec §3 and §9 "String truncation".
const maxIDBytes = 63

// TruncateID enforces the ≤63-byte textual id limit the external store
// contract requires (spec §6.3: "String fields are truncated to 63 bytes
// plus a terminator"). Go strings aren't NUL-terminated, but truncation at
// the same byte boundary is kept for store-compatibility.
func TruncateID(id string) string {
	b := []byte(id)
	if len(b) <= maxIDBytes {
		return id
	}
	return string(b[:maxIDBytes])
}

// MAC is a 6-octet hardware address, stored and compared as a fixed-size
// array so it can be used directly as (part of) a map key.
type MAC [6]byte

// MACFromUint48 decodes a 48-bit big-endian integer into a MAC, matching
// spec §6.3's octet rule: octet k = (mac >> (40-8k)) & 0xff for k = 0..5.
func MACFromUint48(v uint64) MAC {
	var m MAC
	for k := 0; k < 6; k++ {
		shift := uint(40 - 8*k)
		m[k] = byte((v >> shift) & 0xff)
	}
	return m
}

func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// Slice is the entity from spec §3 "Slice".
type Slice struct {
	Number        uint16
	ID            string
	NMACSliceMaps int
	FoundInStore  bool
}

// Binding is the tagged record from spec §3 "Binding". Not every field is
// meaningful for every Type: PORT bindings ignore MAC, MAC bindings ignore
// DatapathID/Port/VID, etc. This mirrors the original C union-by-convention
// binding_entry, generalized per spec §9's "Polymorphism over binding
// kinds" note into one shared-metadata record instead of raw memcmp-over-
// bytes key slicing.
type Binding struct {
	Type        BindingType
	DatapathID  uint64
	Port        uint16
	VID         uint16
	MAC         MAC
	SliceNumber uint16
	ID          string
	Dynamic     bool
	UpdatedAt   int64 // unix seconds, monotonic enough for aging comparisons
	FoundInStore bool
}

// portKey is the primary key for port_slice_map: (datapath_id, port, vid).
// The type tag of the original key layout is left out of the key, since
// every port_slice_map record has type=PORT; the tag is kept on the
// Binding itself (Binding.Type).
type portKey struct {
	datapathID uint64
	port       uint16
	vid        uint16
}

// portVIDKey is the reverse index key for port_slice_vid_map:
// (datapath_id, port, slice_number).
type portVIDKey struct {
	datapathID  uint64
	port        uint16
	sliceNumber uint16
}

// portMACKey is the primary key for port_mac_slice_map.
type portMACKey struct {
	datapathID uint64
	port       uint16
	vid        uint16
	mac        MAC
}
