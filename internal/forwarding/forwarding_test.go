package forwarding

import "testing"

func TestNoopControlDoesNotPanic(t *testing.T) {
	c := NoopControl{}
	mac := [6]byte{1, 2, 3, 4, 5, 6}
	c.TeardownPathByMatch(Match{SrcMAC: &mac})
	c.TeardownPathByMatch(Match{DstMAC: &mac})
	c.TeardownPathByPort(1, 2)
}
