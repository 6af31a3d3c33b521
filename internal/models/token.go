package models

import "time"

// AttendanceToken is a short-lived code shown to students. It is never mutated after minting.
type AttendanceToken struct {
	Value      string        `json:"value"`
	MintedAt   time.Time     `json:"minted_at"`
	ValidFor   time.Duration `json:"-"`
	CourseID   string        `json:"course_id"`
	BatchIndex int           `json:"batch_index"`
}

// ExpiresAt is the instant the token stops being the displayed code.
func (t AttendanceToken) ExpiresAt() time.Time {
	return t.MintedAt.Add(t.ValidFor)
}

// BatchState is the sub-state of an active rotation session.
type BatchState string

const (
	BatchStateOpen        BatchState = "open"
	BatchStatePreApproved BatchState = "pre_approved"
)

// Batch accumulates tokens in mint order until it is handed to the commit path. The commit
// receipt is reported separately since the batch is reset as soon as it is flushed.
type Batch struct {
	Tokens     []AttendanceToken
	TargetSize int
}

// Values returns the token values in mint order.
func (b Batch) Values() []string {
	values := make([]string, len(b.Tokens))
	for i, token := range b.Tokens {
		values[i] = token.Value
	}
	return values
}

// Full reports whether the batch reached its target size.
func (b Batch) Full() bool {
	return b.TargetSize > 0 && len(b.Tokens) >= b.TargetSize
}
