package dto

import (
	"time"

	"github.com/noah-isme/attendo-api/internal/models"
	"github.com/noah-isme/attendo-api/pkg/ledger"
)

// StartRotationRequest starts code generation for a course.
type StartRotationRequest struct {
	CourseID string `json:"course_id" validate:"required"`
}

// BatchSizeRequest changes the batch target size of an idle session.
type BatchSizeRequest struct {
	Size int `json:"size" validate:"required,min=1,max=50"`
}

// CommitOutcome reports both halves of a batch flush.
type CommitOutcome struct {
	Kind         ledger.RequestKind `json:"kind"`
	Codes        int                `json:"codes"`
	Ledger       ledger.Result      `json:"ledger"`
	Persisted    int                `json:"persisted"`
	PersistError string             `json:"persist_error,omitempty"`
	CompletedAt  time.Time          `json:"completed_at"`
}

// RotationSnapshot is the observable state of a rotation session.
type RotationSnapshot struct {
	Active           bool              `json:"active"`
	CourseID         string            `json:"course_id,omitempty"`
	CurrentToken     string            `json:"current_token,omitempty"`
	ExpiresAt        *time.Time        `json:"expires_at,omitempty"`
	SecondsRemaining int               `json:"seconds_remaining"`
	RotationCount    int               `json:"rotation_count"`
	TargetSize       int               `json:"target_size"`
	BatchState       models.BatchState `json:"batch_state,omitempty"`
	TotalMinted      int               `json:"total_minted"`
	LedgerAvailable  bool              `json:"ledger_available"`
	LastError        string            `json:"last_error,omitempty"`
	LastCommit       *CommitOutcome    `json:"last_commit,omitempty"`
}
