package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/attendo-api/pkg/config"
)

const (
	methodUpdateCode   = "attendance_updateAttendanceCode"
	methodUpdateBatch  = "attendance_updateBatchAttendanceCodes"
	methodMarkAttended = "attendance_markAttendance"
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	ID     uint64     `json:"id"`
	Result *rpcResult `json:"result,omitempty"`
	Error  *rpcError  `json:"error,omitempty"`
}

type rpcResult struct {
	TxHash string `json:"txHash"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type commitParams struct {
	Contract  string   `json:"contract"`
	From      string   `json:"from"`
	Code      string   `json:"code,omitempty"`
	Codes     []string `json:"codes,omitempty"`
	BatchHash string   `json:"batchHash,omitempty"`
	Validity  uint64   `json:"validityInMinutes"`
}

type markParams struct {
	Contract string `json:"contract"`
	From     string `json:"from"`
	Code     string `json:"code"`
	Student  string `json:"student"`
}

// RelayerClient submits contract calls to a JSON-RPC relayer holding the teacher's signer.
type RelayerClient struct {
	endpoint     string
	contract     string
	signer       string
	timeout      time.Duration
	validityUnit time.Duration
	httpClient   *http.Client
	cb           *gobreaker.CircuitBreaker[*rpcResponse]
	logger       *zap.Logger
	nextID       atomic.Uint64
}

// NewRelayerClient builds a relayer client. A nil httpClient uses a default one.
func NewRelayerClient(cfg config.LedgerConfig, httpClient *http.Client, logger *zap.Logger) *RelayerClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	breakerTimeout := cfg.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = time.Minute
	}

	client := &RelayerClient{
		endpoint:     cfg.RPCURL,
		contract:     cfg.ContractAddress,
		signer:       cfg.SignerAddress,
		timeout:      timeout,
		validityUnit: cfg.ValidityUnit,
		httpClient:   httpClient,
		logger:       logger,
	}

	client.cb = gobreaker.NewCircuitBreaker[*rpcResponse](gobreaker.Settings{
		Name:        "ledger-relayer",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// An RPC error means the relayer answered; only transport failures count.
		IsSuccessful: func(err error) bool {
			var rpcErr *rpcError
			return err == nil || errors.As(err, &rpcErr)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("ledger circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return client
}

// Available reports whether calls can currently reach the relayer.
func (c *RelayerClient) Available() bool {
	return c.cb.State() != gobreaker.StateOpen
}

// Commit publishes one code or a batch of codes with their validity window.
func (c *RelayerClient) Commit(ctx context.Context, req Request) Result {
	if len(req.Codes) == 0 {
		return Failed(FailureUnknown, "no codes to commit")
	}
	params := commitParams{
		Contract: c.contract,
		From:     c.signer,
		Validity: ValidityUnits(req.Validity, c.validityUnit),
	}
	method := methodUpdateCode
	switch req.Kind {
	case KindBatch:
		method = methodUpdateBatch
		params.Codes = req.Codes
		params.BatchHash = req.Hash()
	case KindSingleCode:
		params.Code = req.Code()
	default:
		return Failed(FailureUnknown, fmt.Sprintf("unknown request kind %q", req.Kind))
	}
	return c.call(ctx, method, params)
}

// Redeem marks a single code as used by the student.
func (c *RelayerClient) Redeem(ctx context.Context, code, studentID string) Result {
	return c.call(ctx, methodMarkAttended, markParams{
		Contract: c.contract,
		From:     c.signer,
		Code:     code,
		Student:  studentID,
	})
}

func (c *RelayerClient) call(ctx context.Context, method string, params interface{}) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.cb.Execute(func() (*rpcResponse, error) {
		return c.post(ctx, method, params)
	})
	if err != nil {
		result := classify(err)
		c.logger.Warn("ledger call failed",
			zap.String("method", method),
			zap.String("failure", string(result.Failure)),
			zap.Error(err),
		)
		return result
	}
	if resp.Result == nil || resp.Result.TxHash == "" {
		return Failed(FailureRPC, "relayer returned no transaction hash")
	}
	return Result{Status: StatusCommitted, TxHash: resp.Result.TxHash}
}

func (c *RelayerClient) post(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  []interface{}{params},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("network error calling %s: %w", method, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("network error reading %s: %w", method, err)
	}
	if httpResp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("network error: relayer status %d", httpResp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &rpcError{Code: -32700, Message: "invalid relayer response"}
	}
	if decoded.Error != nil {
		return nil, decoded.Error
	}
	return &decoded, nil
}

// classify maps relayer and transport errors onto user-facing failure kinds.
func classify(err error) Result {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Failed(FailureCircuitOpen, "Ledger temporarily unreachable, retry later")
	}

	var rpcErr *rpcError
	if errors.As(err, &rpcErr) {
		msg := strings.ToLower(rpcErr.Message)
		switch {
		case rpcErr.Code == 4001 || strings.Contains(msg, "user rejected"):
			return Failed(FailureRejected, "Transaction was rejected by the signer")
		case strings.Contains(msg, "already marked"):
			return Failed(FailureAlreadyMarked, "Attendance already marked on the ledger for this session")
		case strings.Contains(msg, "revert") || strings.Contains(msg, "call exception"):
			return Failed(FailureReverted, "Contract error: transaction reverted")
		case strings.Contains(msg, "gas") || strings.Contains(msg, "fee"):
			return Failed(FailureGas, "Gas error: transaction may require more gas than allowed")
		case rpcErr.Code <= -32000 && rpcErr.Code >= -32768:
			return Failed(FailureRPC, "RPC error: check the relayer network configuration")
		default:
			return Failed(FailureUnknown, "Error: "+rpcErr.Message)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "network") {
		return Failed(FailureNetwork, "Network error: the ledger relayer could not be reached")
	}
	return Failed(FailureUnknown, "Error: "+err.Error())
}
