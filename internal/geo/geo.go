// Package geo validates GPS coordinates and accuracy. Pure functions only.
package geo

import (
	"fmt"
	"math"
)

// accuracyThresholdMeters is the worst GPS accuracy accepted without a
// warning, inclusive.
const accuracyThresholdMeters = 50.0

func AccuracyThreshold() float64 { return accuracyThresholdMeters }

// ValidRange reports whether both values are well-formed numbers inside
// lng [-180,180], lat [-90,90].
func ValidRange(lng, lat float64) bool {
	if math.IsNaN(lng) || math.IsNaN(lat) || math.IsInf(lng, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lng >= -180 && lng <= 180 && lat >= -90 && lat <= 90
}

type AccuracyResult struct {
	IsValid  bool
	Warning  *string
	Accuracy *float64
}

// ValidateAccuracy checks the coordinate range and classifies the reported
// accuracy. Accuracy above the threshold is still valid but carries a
// warning; a missing accuracy carries a fixed warning and a nil accuracy.
func ValidateAccuracy(lat, lng float64, accuracy *float64) AccuracyResult {
	if !ValidRange(lng, lat) {
		w := "invalid coordinates"
		return AccuracyResult{IsValid: false, Warning: &w}
	}

	if accuracy == nil {
		w := "no accuracy info"
		return AccuracyResult{IsValid: true, Warning: &w}
	}

	if *accuracy <= accuracyThresholdMeters {
		return AccuracyResult{IsValid: true, Accuracy: accuracy}
	}

	w := fmt.Sprintf("low accuracy %dm", int64(math.Round(*accuracy)))
	return AccuracyResult{IsValid: true, Warning: &w, Accuracy: accuracy}
}
