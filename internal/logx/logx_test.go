package logx

import "testing"

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Infof("should not panic")
	l.Errorf("should not panic either")
}

func TestLevelFiltering(t *testing.T) {
	l := New(LevelWarn)
	// Nothing observable to assert on without capturing stderr; this just
	// exercises every level below/at/above the floor without panicking.
	l.Debugf("dropped")
	l.Infof("dropped")
	l.Warnf("kept")
	l.Errorf("kept")
}
