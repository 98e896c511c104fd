// Package wallet abstracts a wallet provider reached over Ethereum JSON-RPC.
//
// A provider is whatever node or signer answers eth_requestAccounts and
// eth_sendTransaction for the user: a local dev chain (ganache, anvil), a
// signing proxy, or a browser wallet bridge.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrNoProvider = errors.New("no wallet provider found: set --rpc or DAPPKIT_RPC_URL to a JSON-RPC endpoint")
	ErrNoAccounts = errors.New("wallet has no authorized accounts")
)

// JSON-RPC error codes meaning the method is not served by this endpoint
const (
	codeMethodNotFound   = -32601
	codeMethodNotSupport = -32004
)

// Provider is the subset of wallet capabilities the dapp flows need
type Provider interface {
	// RequestAccounts asks the wallet to authorize accounts for this dapp.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// Accounts returns the currently authorized accounts without prompting.
	Accounts(ctx context.Context) ([]common.Address, error)
	NetworkID(ctx context.Context) (string, error)
	CodeAt(ctx context.Context, addr common.Address) ([]byte, error)
	Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	// SendTransaction hands the transaction to the wallet for signing and broadcast.
	SendTransaction(ctx context.Context, tx TxArgs) (common.Hash, error)
	// TransactionReceipt returns ethereum.NotFound while the transaction is pending.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// TxArgs are the eth_sendTransaction parameters
type TxArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
}

// RPCProvider implements Provider on a JSON-RPC endpoint
type RPCProvider struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	version string
	logger  *slog.Logger
}

// Dial connects to url and confirms a provider answers there
func Dial(ctx context.Context, url string, logger *slog.Logger) (*RPCProvider, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrNoProvider
	}
	if logger == nil {
		logger = slog.Default()
	}

	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoProvider, err)
	}

	var version string
	if err := c.CallContext(ctx, &version, "web3_clientVersion"); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: %s did not answer web3_clientVersion: %v", ErrNoProvider, url, err)
	}
	logger.Debug("wallet provider detected", "url", url, "client", version)

	return &RPCProvider{
		rpc:     c,
		eth:     ethclient.NewClient(c),
		version: version,
		logger:  logger,
	}, nil
}

// ClientVersion returns the web3_clientVersion reported at dial time
func (p *RPCProvider) ClientVersion() string {
	return p.version
}

// Close closes the underlying connection
func (p *RPCProvider) Close() {
	p.rpc.Close()
}

// RequestAccounts calls eth_requestAccounts, falling back to eth_accounts
// on endpoints that predate it.
func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	err := p.rpc.CallContext(ctx, &accounts, "eth_requestAccounts")
	if err == nil {
		return accounts, nil
	}
	if !isMethodNotFound(err) {
		return nil, fmt.Errorf("requesting accounts: %w", err)
	}
	p.logger.Debug("eth_requestAccounts unsupported, falling back to eth_accounts", "error", err)
	return p.Accounts(ctx)
}

// Accounts calls eth_accounts
func (p *RPCProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := p.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return accounts, nil
}

// NetworkID returns net_version as a decimal string, the key artifacts use
func (p *RPCProvider) NetworkID(ctx context.Context) (string, error) {
	id, err := p.eth.NetworkID(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving network id: %w", err)
	}
	return id.String(), nil
}

func (p *RPCProvider) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	return p.eth.CodeAt(ctx, addr, nil)
}

func (p *RPCProvider) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return p.eth.CallContract(ctx, msg, nil)
}

// SendTransaction calls eth_sendTransaction; the wallet signs
func (p *RPCProvider) SendTransaction(ctx context.Context, tx TxArgs) (common.Hash, error) {
	var hash common.Hash
	if err := p.rpc.CallContext(ctx, &hash, "eth_sendTransaction", tx); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

func (p *RPCProvider) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return p.eth.TransactionReceipt(ctx, hash)
}

// Balance is used by `dappkit kyc connect` to show the active account's funds
func (p *RPCProvider) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return p.eth.BalanceAt(ctx, addr, nil)
}

func isMethodNotFound(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		code := rpcErr.ErrorCode()
		return code == codeMethodNotFound || code == codeMethodNotSupport
	}
	return false
}
