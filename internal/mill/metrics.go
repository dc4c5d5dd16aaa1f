package mill

// Loom shift metrics. 720 is minutes per 12-hour shift; 39.37 converts
// picks per inch to picks per meter.

// LoomEfficiency is the percentage of the loom's potential picks
// actually woven, normalized to a 12-hour shift.
func LoomEfficiency(reading, rpm, shiftHours float64) float64 {
	if rpm == 0 || shiftHours == 0 {
		return 0
	}
	return Round2((reading * 100) / (rpm * 720) * (12 / shiftHours))
}

// LoomProductionMeters converts a pick-counter reading to woven meters.
func LoomProductionMeters(reading, ppi float64) float64 {
	if ppi == 0 {
		return 0
	}
	return Round2(reading / (ppi * 39.37))
}

// LoomPotentialMeters is what a full shift at rated RPM would weave.
func LoomPotentialMeters(rpm, ppi float64) float64 {
	if ppi == 0 {
		return 0
	}
	return (rpm * 720) / (ppi * 39.37)
}

// LoomLossMeters is the shortfall between potential and actual output.
func LoomLossMeters(rpm, ppi, reading float64) float64 {
	if ppi == 0 {
		return 0
	}
	return Round2(LoomPotentialMeters(rpm, ppi) - reading/(ppi*39.37))
}
