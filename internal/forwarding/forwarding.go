// Package forwarding declares the outbound interface the reconciliation
// loop calls into (spec §6.2): the OpenFlow forwarding layer's flow
// teardown API. The real implementation lives entirely outside this
// module's scope (spec §1, "OUT OF SCOPE: ... flow-rule teardown API");
// this package only carries the interface and a logging stub so the
// engine can run standalone.
package forwarding

import "github.com/nec-oss/sliceengine/internal/logx"

// Match carries the wildcard + dl_src/dl_dst selector spec §6.2 describes.
// Only one of SrcMAC/DstMAC is set per call, per spec §4.C step 5a
// ("teardown_path_by_match(dl_src=mac)" and "...(dl_dst=mac)").
type Match struct {
	SrcMAC *[6]byte
	DstMAC *[6]byte
}

// Control is the forwarding-layer surface the reconciliation loop depends
// on (spec §6.2).
type Control interface {
	TeardownPathByMatch(m Match)
	TeardownPathByPort(datapathID uint64, port uint16)
}

// NoopControl logs what would have been torn down; it is the default when
// no real forwarding layer is wired in (e.g. the demo harness / tests).
type NoopControl struct {
	Log *logx.Logger
}

func (c NoopControl) log() *logx.Logger {
	if c.Log != nil {
		return c.Log
	}
	return logx.Default
}

func (c NoopControl) TeardownPathByMatch(m Match) {
	switch {
	case m.SrcMAC != nil:
		c.log().Infof("forwarding: teardown_path_by_match(dl_src=%x)", *m.SrcMAC)
	case m.DstMAC != nil:
		c.log().Infof("forwarding: teardown_path_by_match(dl_dst=%x)", *m.DstMAC)
	}
}

func (c NoopControl) TeardownPathByPort(datapathID uint64, port uint16) {
	c.log().Infof("forwarding: teardown_path_by_port(datapath_id=%#x, port=%d)", datapathID, port)
}
