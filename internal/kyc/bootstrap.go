// Package kyc drives the KYC contract: wallet bootstrap, a network-bound
// contract handle and the register / status operations.
package kyc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/dappkit/internal/artifact"
	"github.com/pendergraft/dappkit/internal/wallet"
)

var (
	ErrContractNotLoaded = errors.New("contract not loaded")
	ErrMissingFields     = errors.New("all fields are required")
	ErrInvalidAge        = errors.New("age must be a non-negative integer")
	ErrTransactionFailed = errors.New("transaction failed")
	ErrStaleSession      = errors.New("wallet network or account changed since connect")
)

// Config bounds every provider interaction
type Config struct {
	StepTimeout         time.Duration
	TxTimeout           time.Duration
	ReceiptPollInterval time.Duration
	// VerifyCode checks eth_getCode at the deployment address during bootstrap.
	VerifyCode bool
	Logger     *slog.Logger
}

// DefaultConfig returns settings suited to a local dev chain
func DefaultConfig() Config {
	return Config{
		StepTimeout:         15 * time.Second,
		TxTimeout:           2 * time.Minute,
		ReceiptPollInterval: time.Second,
		VerifyCode:          true,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StepTimeout <= 0 {
		c.StepTimeout = d.StepTimeout
	}
	if c.TxTimeout <= 0 {
		c.TxTimeout = d.TxTimeout
	}
	if c.ReceiptPollInterval <= 0 {
		c.ReceiptPollInterval = d.ReceiptPollInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Session is the wallet identity and network a bootstrap resolved. Handle is
// nil when the contract is not deployed on NetworkID.
type Session struct {
	Account   common.Address
	NetworkID string
	Handle    *Handle

	cfg      Config
	provider wallet.Provider
	artifact *artifact.Artifact
}

// Bootstrap resolves account, network and contract deployment in order.
//
// When the contract is not deployed on the current network, Bootstrap returns
// the session (with a nil Handle) together with an error wrapping
// artifact.ErrNotDeployed, so the caller can still show the account.
func Bootstrap(ctx context.Context, cfg Config, p wallet.Provider, art *artifact.Artifact) (*Session, error) {
	cfg = cfg.withDefaults()
	if p == nil {
		return nil, wallet.ErrNoProvider
	}
	if art == nil {
		return nil, fmt.Errorf("%w: no artifact loaded", artifact.ErrInvalidArtifact)
	}
	log := cfg.Logger

	var accounts []common.Address
	err := step(ctx, cfg.StepTimeout, "requesting accounts", func(ctx context.Context) error {
		var err error
		accounts, err = p.RequestAccounts(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, wallet.ErrNoAccounts
	}

	s := &Session{
		Account:  accounts[0],
		cfg:      cfg,
		provider: p,
		artifact: art,
	}
	log.Debug("wallet account authorized", "account", s.Account.Hex())

	err = step(ctx, cfg.StepTimeout, "resolving network", func(ctx context.Context) error {
		var err error
		s.NetworkID, err = p.NetworkID(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	dep, err := art.Lookup(s.NetworkID)
	if err != nil {
		log.Warn("contract not deployed", "contract", art.ContractName, "network", s.NetworkID, "error", err)
		return s, err
	}

	if cfg.VerifyCode {
		var code []byte
		err = step(ctx, cfg.StepTimeout, "reading contract code", func(ctx context.Context) error {
			var err error
			code, err = p.CodeAt(ctx, dep.Address)
			return err
		})
		if err != nil {
			return nil, err
		}
		if err := art.VerifyCode(dep, code); err != nil {
			log.Warn("contract code check failed", "address", dep.Address.Hex(), "network", s.NetworkID, "error", err)
			return s, err
		}
	}

	h, err := newHandle(art, dep, s.Account, p, cfg)
	if err != nil {
		return nil, err
	}
	s.Handle = h

	log.Info("contract loaded",
		"contract", art.ContractName,
		"address", dep.Address.Hex(),
		"network", s.NetworkID,
		"account", s.Account.Hex(),
	)
	return s, nil
}

// Refresh re-runs the bootstrap against the same provider and artifact.
// The receiver is left untouched.
func (s *Session) Refresh(ctx context.Context) (*Session, error) {
	return Bootstrap(ctx, s.cfg, s.provider, s.artifact)
}

// step runs fn under its own deadline
func step(ctx context.Context, timeout time.Duration, name string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
