package mill_test

import (
	"math"
	"testing"

	"milltrack/internal/mill"
)

func TestLoomEfficiency(t *testing.T) {
	// (86400 * 100) / (600 * 720) * (12/12) = 20
	if got := mill.LoomEfficiency(86400, 600, 12); got != 20 {
		t.Errorf("LoomEfficiency 12h = %v, want 20", got)
	}
	// Shorter shifts normalize upward: same reading over 8h is 30.
	if got := mill.LoomEfficiency(86400, 600, 8); got != 30 {
		t.Errorf("LoomEfficiency 8h = %v, want 30", got)
	}
	if got := mill.LoomEfficiency(86400, 0, 12); got != 0 {
		t.Errorf("zero RPM should yield 0, got %v", got)
	}
	if got := mill.LoomEfficiency(86400, 600, 0); got != 0 {
		t.Errorf("zero shift hours should yield 0, got %v", got)
	}
}

func TestLoomProductionMeters(t *testing.T) {
	// 3937 picks at 100 PPI: 3937 / (100 * 39.37) = 1 meter.
	if got := mill.LoomProductionMeters(3937, 100); got != 1 {
		t.Errorf("LoomProductionMeters = %v, want 1", got)
	}
	if got := mill.LoomProductionMeters(3937, 0); got != 0 {
		t.Errorf("zero PPI should yield 0, got %v", got)
	}
}

func TestLoomPotentialAndLossMeters(t *testing.T) {
	potential := mill.LoomPotentialMeters(600, 100)
	want := (600.0 * 720) / (100 * 39.37)
	if math.Abs(potential-want) > 1e-9 {
		t.Errorf("LoomPotentialMeters = %v, want %v", potential, want)
	}

	loss := mill.LoomLossMeters(600, 100, 3937)
	if math.Abs(loss-mill.Round2(want-1)) > 1e-9 {
		t.Errorf("LoomLossMeters = %v, want %v", loss, mill.Round2(want-1))
	}
	if got := mill.LoomLossMeters(600, 0, 3937); got != 0 {
		t.Errorf("zero PPI should yield 0, got %v", got)
	}
}
