package defect

import "math"

// Modified B31G (0.85 dL) remaining-strength assessment.
//
// The estimated repair factor is ERF = MAOP / Psafe, where Psafe is the safe
// operating pressure of the corroded pipe. ERF >= 1 means the defect requires
// repair at the current operating pressure.
//
// The survey files do not always carry the pipe geometry, so the assessment
// falls back to the documented line-pipe defaults below. Callers must surface
// default use explicitly (the feature deriver records it in DefaultsApplied).
const (
	// DefaultWallThicknessMM is the nominal wall of the surveyed trunk lines.
	DefaultWallThicknessMM = 10.0
	// DefaultAxialLengthMM is the assumed axial extent of an unmeasured defect.
	DefaultAxialLengthMM = 100.0
	// DefaultOutsideDiameterMM matches the DN700 trunk line geometry.
	DefaultOutsideDiameterMM = 720.0
	// DefaultSMYSMPa is the specified minimum yield strength of X52 pipe.
	DefaultSMYSMPa = 358.0
	// DefaultMAOPMPa is the maximum allowable operating pressure of the line.
	DefaultMAOPMPa = 6.4
	// DesignFactor divides the failure pressure to obtain Psafe.
	DesignFactor = 1.39

	// flowStressBonusMPa: modified B31G takes flow stress = SMYS + 69 MPa.
	flowStressBonusMPa = 69.0
)

// ERFB31G computes the estimated repair factor for a metal-loss defect using
// the modified B31G (0.85 dL) method with the package default diameter,
// yield strength and MAOP.
func ERFB31G(depthPercent, wallThicknessMM, axialLengthMM float64) float64 {
	return erfB31G(depthPercent, wallThicknessMM, axialLengthMM,
		DefaultOutsideDiameterMM, DefaultSMYSMPa, DefaultMAOPMPa)
}

func erfB31G(depthPercent, t, l, d, smys, maop float64) float64 {
	if t <= 0 || d <= 0 {
		return 0
	}
	if depthPercent < 0 {
		depthPercent = 0
	}
	if depthPercent > 100 {
		depthPercent = 100
	}

	dt := depthPercent / 100 // d/t ratio

	// Folias bulging factor.
	z := l * l / (d * t)
	var m float64
	if z <= 50 {
		m = math.Sqrt(1 + 0.6275*z - 0.003375*z*z)
	} else {
		m = 0.032*z + 3.3
	}

	flowStress := smys + flowStressBonusMPa

	num := 1 - 0.85*dt
	den := 1 - 0.85*dt/m
	if den <= 0 {
		den = 1e-9
	}

	failurePressure := (2 * flowStress * t / d) * num / den
	safePressure := failurePressure / DesignFactor
	if safePressure <= 0 {
		return math.Inf(1)
	}

	return maop / safePressure
}
