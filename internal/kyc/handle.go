package kyc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pendergraft/dappkit/internal/artifact"
	"github.com/pendergraft/dappkit/internal/validation"
	"github.com/pendergraft/dappkit/internal/wallet"
)

const (
	methodRegister = "registerUser"
	methodGetUser  = "getUser"

	// getUser returns (name, age, email, aadhar, registered)
	getUserOutputs   = 5
	registeredOutput = 4
)

// RegistrationInput is the KYC form
type RegistrationInput struct {
	Name     string
	Age      string
	Email    string
	AadharID string
}

// Validate checks the form before any provider call and returns the parsed age
func (in RegistrationInput) Validate() (*big.Int, error) {
	if in.Name == "" || in.Age == "" || in.Email == "" || in.AadharID == "" {
		return nil, ErrMissingFields
	}
	age, err := validation.ValidateAge(in.Age)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAge, in.Age)
	}
	return new(big.Int).SetUint64(age), nil
}

// TxResult is a mined registration
type TxResult struct {
	Hash        common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

// Handle is the KYC contract bound to one deployment, network and account
type Handle struct {
	Address   common.Address
	NetworkID string

	account  common.Address
	abi      abi.ABI
	provider wallet.Provider
	cfg      Config
}

func newHandle(art *artifact.Artifact, dep *artifact.Deployment, account common.Address, p wallet.Provider, cfg Config) (*Handle, error) {
	contractABI := art.ABI()
	for _, name := range []string{methodRegister, methodGetUser} {
		if _, ok := contractABI.Methods[name]; !ok {
			return nil, fmt.Errorf("%w: %s has no %s method", artifact.ErrInvalidArtifact, art.ContractName, name)
		}
	}
	if n := len(contractABI.Methods[methodGetUser].Outputs); n != getUserOutputs {
		return nil, fmt.Errorf("%w: %s returns %d values, want %d", artifact.ErrInvalidArtifact, methodGetUser, n, getUserOutputs)
	}

	return &Handle{
		Address:   dep.Address,
		NetworkID: dep.NetworkID,
		account:   account,
		abi:       contractABI,
		provider:  p,
		cfg:       cfg,
	}, nil
}

// Account is the identity transactions are sent from
func (h *Handle) Account() common.Address {
	return h.account
}

// Register submits registerUser and waits for it to be mined
func (h *Handle) Register(ctx context.Context, in RegistrationInput) (*TxResult, error) {
	if h == nil {
		return nil, ErrContractNotLoaded
	}
	age, err := in.Validate()
	if err != nil {
		return nil, err
	}
	if err := h.checkFresh(ctx); err != nil {
		return nil, err
	}

	data, err := h.abi.Pack(methodRegister, in.Name, age, in.Email, in.AadharID)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", methodRegister, err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.TxTimeout)
	defer cancel()

	to := h.Address
	hash, err := h.provider.SendTransaction(ctx, wallet.TxArgs{
		From: h.account,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
	h.cfg.Logger.Info("registration submitted", "tx", hash.Hex(), "account", h.account.Hex())

	receipt, err := h.waitMined(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: transaction %s reverted", ErrTransactionFailed, hash.Hex())
	}

	res := &TxResult{Hash: hash, GasUsed: receipt.GasUsed}
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}
	h.cfg.Logger.Info("registration mined", "tx", hash.Hex(), "block", res.BlockNumber, "gas_used", res.GasUsed)
	return res, nil
}

// Status reports whether the handle's account is registered
func (h *Handle) Status(ctx context.Context) (bool, error) {
	if h == nil {
		return false, ErrContractNotLoaded
	}
	if err := h.checkFresh(ctx); err != nil {
		return false, err
	}

	data, err := h.abi.Pack(methodGetUser, h.account)
	if err != nil {
		return false, fmt.Errorf("packing %s: %w", methodGetUser, err)
	}

	var out []byte
	err = step(ctx, h.cfg.StepTimeout, "calling "+methodGetUser, func(ctx context.Context) error {
		to := h.Address
		var err error
		out, err = h.provider.Call(ctx, ethereum.CallMsg{From: h.account, To: &to, Data: data})
		return err
	})
	if err != nil {
		return false, err
	}

	values, err := h.abi.Unpack(methodGetUser, out)
	if err != nil {
		return false, fmt.Errorf("decoding %s: %w", methodGetUser, err)
	}
	registered, ok := values[registeredOutput].(bool)
	if !ok {
		return false, fmt.Errorf("decoding %s: output %d is %T, want bool", methodGetUser, registeredOutput, values[registeredOutput])
	}
	return registered, nil
}

// checkFresh confirms the provider still reports the handle's account and network
func (h *Handle) checkFresh(ctx context.Context) error {
	var accounts []common.Address
	var networkID string
	err := step(ctx, h.cfg.StepTimeout, "checking wallet", func(ctx context.Context) error {
		var err error
		if accounts, err = h.provider.Accounts(ctx); err != nil {
			return err
		}
		networkID, err = h.provider.NetworkID(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if len(accounts) == 0 || accounts[0] != h.account || networkID != h.NetworkID {
		h.cfg.Logger.Warn("wallet changed since connect",
			"network", networkID, "bound_network", h.NetworkID, "bound_account", h.account.Hex())
		return ErrStaleSession
	}
	return nil
}

// waitMined polls for the transaction receipt until ctx is done
func (h *Handle) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(h.cfg.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := h.provider.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
