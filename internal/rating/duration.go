// Package rating holds the pure billing computations: duration
// normalization and invoice line construction. Everything here is
// deterministic and side-effect free so posting runs can recompute
// lines on every attempt.
package rating

import (
	"errors"
	"math"
	"time"
)

// UnitMinutes is the standard session length one billing unit represents.
const UnitMinutes = 50.0

// ErrUnbillableDuration marks a duration that cannot be normalized;
// ingestion maps it to the needs_review_duration status.
var ErrUnbillableDuration = errors.New("unbillable_duration")

// ServiceCode identifies which external item a session bills against.
type ServiceCode string

const (
	ServiceCode50 ServiceCode = "SESSION_50"
	ServiceCode90 ServiceCode = "SESSION_90"
)

// DurationResult is the normalized billing view of a raw duration.
type DurationResult struct {
	// Quantity is the prorated number of billing units, rounded to two
	// decimal places: 50 minutes bills 1.00 unit, 70 minutes 1.40.
	Quantity float64
	// ServiceCode selects the external item. The historical bucket rule
	// still decides between the 50 and 90 minute items; durations outside
	// both buckets fall back to the 50-minute item with a prorated
	// quantity.
	ServiceCode ServiceCode
}

// NormalizeDuration converts raw minutes to a billing quantity.
//
// Proration is the canonical policy: quantity = minutes / 50, always
// succeeding for positive durations. The older bucket policy (45-55 is
// one 50-minute unit, 85-95 one 90-minute unit, everything else
// rejected) survives only in service code selection above. Non-positive
// or non-finite durations still fail so the review queue catches broken
// calendar data.
func NormalizeDuration(minutes float64) (DurationResult, error) {
	if minutes <= 0 || math.IsNaN(minutes) || math.IsInf(minutes, 0) {
		return DurationResult{}, ErrUnbillableDuration
	}

	quantity := math.Round(minutes/UnitMinutes*100) / 100

	code := ServiceCode50
	if minutes >= 85 && minutes <= 95 {
		code = ServiceCode90
	}

	return DurationResult{Quantity: quantity, ServiceCode: code}, nil
}

// MinutesBetween derives a duration in whole minutes from event
// timestamps, rounded to the nearest minute. Used when the webhook
// payload omits the raw duration.
func MinutesBetween(start, end time.Time) float64 {
	return math.Round(end.Sub(start).Minutes())
}
