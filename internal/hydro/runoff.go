package hydro

// Unit conversions of the rational method. Rainfall intensity is in
// inches/hour, so Q = C*I*A with A in acres yields cubic feet per second.
const (
	AcresPerSquareMeter     = 0.000247105
	CubicMetersPerCubicFoot = 0.0283168
	SecondsPerHour          = 3600.0
)

// PeakRunoff returns the peak discharge in cubic feet per second for a
// watershed of areaM2 square meters. meanC is not clamped.
func PeakRunoff(areaM2, intensityInPerHr, meanC float64) float64 {
	return meanC * intensityInPerHr * (areaM2 * AcresPerSquareMeter)
}

// RunoffVolume converts a discharge in cubic feet per second sustained for
// durationHours into a volume in cubic meters.
func RunoffVolume(peakCFS, durationHours float64) float64 {
	return peakCFS * durationHours * SecondsPerHour * CubicMetersPerCubicFoot
}
