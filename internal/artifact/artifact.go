// Package artifact loads truffle-style compiled contract artifacts and resolves
// the deployment an artifact records for a network.
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/pendergraft/dappkit/internal/validation"
)

var (
	ErrNotDeployed     = errors.New("contract not deployed on this network")
	ErrInvalidArtifact = errors.New("invalid contract artifact")
)

// Network is one entry of the artifact's "networks" map
type Network struct {
	Address         string `json:"address"`
	TransactionHash string `json:"transactionHash,omitempty"`
}

// Artifact is a compiled contract as written by truffle
type Artifact struct {
	ContractName     string          `json:"contractName"`
	RawABI           json.RawMessage `json:"abi"`
	DeployedBytecode string          `json:"deployedBytecode,omitempty"`
	// ImmutableReferences maps an AST id to the code ranges solc left zeroed
	// for an immutable variable. nil when the artifact predates the field.
	ImmutableReferences map[string][]CodeRange `json:"immutableReferences,omitempty"`
	SchemaVersion       string                 `json:"schemaVersion,omitempty"`
	Networks            map[string]Network     `json:"networks"`

	abi abi.ABI
}

// Deployment is the artifact's record for one network
type Deployment struct {
	NetworkID       string
	Address         common.Address
	TransactionHash common.Hash
}

// Load reads and parses an artifact file
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	a, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}

// Parse decodes artifact JSON and its ABI
func Parse(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	if len(a.RawABI) == 0 {
		return nil, fmt.Errorf("%w: missing abi", ErrInvalidArtifact)
	}
	if err := validation.ValidateSchemaVersion(a.SchemaVersion); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}

	parsed, err := abi.JSON(bytes.NewReader(a.RawABI))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing abi: %v", ErrInvalidArtifact, err)
	}
	a.abi = parsed
	return &a, nil
}

// ABI returns the parsed contract ABI
func (a *Artifact) ABI() abi.ABI {
	return a.abi
}

// Lookup returns the deployment recorded for networkID
func (a *Artifact) Lookup(networkID string) (*Deployment, error) {
	if err := validation.ValidateNetworkID(networkID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotDeployed, err)
	}
	n, ok := a.Networks[networkID]
	if !ok || n.Address == "" {
		return nil, ErrNotDeployed
	}
	if err := validation.ValidateAddress(n.Address); err != nil {
		return nil, fmt.Errorf("%w: network %s: %v", ErrInvalidArtifact, networkID, err)
	}

	addr := common.HexToAddress(n.Address)
	if addr == (common.Address{}) {
		return nil, ErrNotDeployed
	}
	return &Deployment{
		NetworkID:       networkID,
		Address:         addr,
		TransactionHash: common.HexToHash(n.TransactionHash),
	}, nil
}

// RuntimeCode decodes deployedBytecode. It returns nil when the artifact has
// none or the code still needs library linking.
func (a *Artifact) RuntimeCode() ([]byte, error) {
	code := strings.TrimSpace(a.DeployedBytecode)
	if code == "" || code == "0x" || HasLinkReferences(code) {
		return nil, nil
	}
	if !strings.HasPrefix(code, "0x") {
		code = "0x" + code
	}
	b, err := hexutil.Decode(code)
	if err != nil {
		return nil, fmt.Errorf("%w: deployedBytecode: %v", ErrInvalidArtifact, err)
	}
	return b, nil
}

// VerifyCode checks the code found on chain at a deployment. A deployment
// with no code, or with code that differs from the artifact, is not deployed.
//
// Immutable slots are zeroed on both sides before comparing. An artifact
// without immutableReferences only gets the code presence check, since its
// immutable slots cannot be located.
func (a *Artifact) VerifyCode(d *Deployment, onchain []byte) error {
	if len(onchain) == 0 {
		return fmt.Errorf("%w: no contract code at %s", ErrNotDeployed, d.Address.Hex())
	}
	if a.ImmutableReferences == nil {
		return nil
	}
	compiled, err := a.RuntimeCode()
	if err != nil {
		return err
	}
	if compiled == nil {
		return nil
	}

	var slots []CodeRange
	for _, refs := range a.ImmutableReferences {
		slots = append(slots, refs...)
	}
	if res := CompareBytecode(MaskRanges(onchain, slots), MaskRanges(compiled, slots)); !res.Match {
		return fmt.Errorf("%w: %s at %s", ErrNotDeployed, res.Message, d.Address.Hex())
	}
	return nil
}
