// Package ledger talks to the attendance smart contract through a signing relayer.
//
// Calls never return Go errors for expected conditions. A missing signer or contract is
// reported as StatusUnavailable and every transport, signing or revert problem as
// StatusFailed, so callers can always treat the ledger as a best-effort second channel next
// to the relational store.
package ledger

import (
	"encoding/hex"
	"math"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// RequestKind discriminates commit requests.
type RequestKind string

const (
	KindSingleCode RequestKind = "single_code"
	KindBatch      RequestKind = "batch"
)

// Request is a commit of either one code or an ordered batch of codes.
type Request struct {
	Kind     RequestKind
	Codes    []string
	Validity time.Duration
}

// SingleCode builds a request committing one code.
func SingleCode(code string, validity time.Duration) Request {
	return Request{Kind: KindSingleCode, Codes: []string{code}, Validity: validity}
}

// Batch builds a request committing codes in the given order.
func Batch(codes []string, validity time.Duration) Request {
	cp := make([]string, len(codes))
	copy(cp, codes)
	return Request{Kind: KindBatch, Codes: cp, Validity: validity}
}

// Code returns the single code of a KindSingleCode request.
func (r Request) Code() string {
	if len(r.Codes) == 0 {
		return ""
	}
	return r.Codes[0]
}

// Hash returns the keccak-256 digest of the request codes joined by newlines, hex encoded
// with a 0x prefix. The relayer uses it as an idempotency key.
func (r Request) Hash() string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(strings.Join(r.Codes, "\n")))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// ValidityUnits converts the validity window into whole contract units, rounding up.
func ValidityUnits(validity, unit time.Duration) uint64 {
	if unit <= 0 {
		unit = time.Minute
	}
	if validity <= 0 {
		return 1
	}
	units := uint64(math.Ceil(float64(validity) / float64(unit)))
	if units == 0 {
		return 1
	}
	return units
}

// Status is the outcome class of a ledger call.
type Status string

const (
	StatusCommitted   Status = "committed"
	StatusUnavailable Status = "unavailable"
	StatusFailed      Status = "failed"
)

// FailureKind classifies StatusFailed results.
type FailureKind string

const (
	FailureNone          FailureKind = ""
	FailureRejected      FailureKind = "rejected"
	FailureReverted      FailureKind = "reverted"
	FailureNetwork       FailureKind = "network"
	FailureGas           FailureKind = "gas"
	FailureRPC           FailureKind = "rpc"
	FailureAlreadyMarked FailureKind = "already_marked"
	FailureCircuitOpen   FailureKind = "circuit_open"
	FailureUnknown       FailureKind = "unknown"
)

// Result is the receipt of a ledger call.
type Result struct {
	Status  Status      `json:"status"`
	TxHash  string      `json:"tx_hash,omitempty"`
	Failure FailureKind `json:"failure,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success reports whether the transaction was accepted.
func (r Result) Success() bool {
	return r.Status == StatusCommitted
}

// Unavailable builds the result returned when no signer or contract is configured.
func Unavailable(reason string) Result {
	if reason == "" {
		reason = "ledger not available"
	}
	return Result{Status: StatusUnavailable, Error: reason}
}

// Failed builds a failed result.
func Failed(kind FailureKind, message string) Result {
	return Result{Status: StatusFailed, Failure: kind, Error: message}
}
