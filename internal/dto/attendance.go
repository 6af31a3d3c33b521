package dto

import (
	"time"

	"github.com/noah-isme/attendo-api/pkg/ledger"
)

// RedeemRequest is a student's code submission.
type RedeemRequest struct {
	Code      string   `json:"code" validate:"required,min=6,max=64"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude" validate:"omitempty,longitude"`
}

// RedeemResponse reports the database and ledger halves separately.
type RedeemResponse struct {
	RedemptionID string        `json:"redemption_id"`
	CourseID     string        `json:"course_id"`
	Recorded     bool          `json:"recorded"`
	RecordedAt   time.Time     `json:"recorded_at"`
	DistanceKm   *float64      `json:"distance_km,omitempty"`
	Ledger       ledger.Result `json:"ledger"`
	LedgerQueued bool          `json:"ledger_queued"`
}

// AttendanceListRequest scopes history listings.
type AttendanceListRequest struct {
	CourseID string
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	PageSize int
}
