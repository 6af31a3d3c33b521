package ledger

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/attendo-api/pkg/config"
)

// Client is the contract surface used by the rotation and redemption flows.
type Client interface {
	Available() bool
	Commit(ctx context.Context, req Request) Result
	Redeem(ctx context.Context, code, studentID string) Result
}

// New returns a relayer client when the ledger is fully configured, otherwise a client that
// always answers StatusUnavailable.
func New(cfg config.LedgerConfig, logger *zap.Logger) Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		return Disabled{Reason: "ledger disabled"}
	}
	if cfg.RPCURL == "" || cfg.ContractAddress == "" || cfg.SignerAddress == "" {
		logger.Warn("ledger enabled but not fully configured; running database-only",
			zap.Bool("rpc_url", cfg.RPCURL != ""),
			zap.Bool("contract", cfg.ContractAddress != ""),
			zap.Bool("signer", cfg.SignerAddress != ""),
		)
		return Disabled{Reason: "ledger not configured"}
	}
	return NewRelayerClient(cfg, nil, logger)
}

// Disabled is the client used when no signing session exists.
type Disabled struct {
	Reason string
}

// Available always reports false.
func (d Disabled) Available() bool { return false }

// Commit always reports the ledger as unavailable.
func (d Disabled) Commit(ctx context.Context, req Request) Result { return Unavailable(d.Reason) }

// Redeem always reports the ledger as unavailable.
func (d Disabled) Redeem(ctx context.Context, code, studentID string) Result {
	return Unavailable(d.Reason)
}
