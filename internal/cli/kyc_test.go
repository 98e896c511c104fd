package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/dappkit/internal/artifact"
	"github.com/pendergraft/dappkit/internal/kyc"
	"github.com/pendergraft/dappkit/internal/wallet"
)

const (
	testArtifact = "../artifact/testdata/KYC.json"
	testAccount  = "0x1111111111111111111111111111111111111111"
)

var testTxHash = "0x" + strings.Repeat("ab", 32)

// ganacheNode is a JSON-RPC fake with one unlocked account on network 5777
type ganacheNode struct {
	mu        sync.Mutex
	networkID string
	getUser   string
	sends     int
}

func (n *ganacheNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	switch req.Method {
	case "web3_clientVersion":
		resp["result"] = "Ganache/v7.9.1/EthereumJS TestRPC/v7.9.1/ethereum-js"
	case "eth_accounts":
		resp["result"] = []string{testAccount}
	case "net_version":
		resp["result"] = n.networkID
	case "eth_getBalance":
		resp["result"] = "0xde0b6b3a7640000"
	case "eth_call":
		resp["result"] = n.getUser
	case "eth_sendTransaction":
		n.sends++
		resp["result"] = testTxHash
	case "eth_getTransactionReceipt":
		resp["result"] = map[string]any{
			"status":            "0x1",
			"cumulativeGasUsed": "0x1f4e4",
			"gasUsed":           "0x1f4e4",
			"logsBloom":         "0x" + strings.Repeat("00", 256),
			"logs":              []any{},
			"transactionHash":   testTxHash,
			"transactionIndex":  "0x0",
			"blockNumber":       "0x7",
			"blockHash":         "0x" + strings.Repeat("cd", 32),
			"type":              "0x0",
		}
	default:
		// ganache has no eth_requestAccounts
		resp["error"] = map[string]any{"code": -32601, "message": "Method " + req.Method + " not supported."}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *ganacheNode) sendCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sends
}

func packGetUser(t *testing.T, registered bool) string {
	t.Helper()
	a, err := artifact.Load(testArtifact)
	require.NoError(t, err)
	out, err := a.ABI().Methods["getUser"].Outputs.Pack("Asha", big.NewInt(29), "asha@example.com", "123412341234", registered)
	require.NoError(t, err)
	return hexutil.Encode(out)
}

func startGanache(t *testing.T, networkID string) *ganacheNode {
	t.Helper()
	isolate(t)
	node := &ganacheNode{networkID: networkID, getUser: packGetUser(t, true)}
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	rpcURL = srv.URL
	artifactPath = testArtifact
	return node
}

func openTestKYC(t *testing.T) *kycEnv {
	t.Helper()
	env, err := openKYC(context.Background(), &bytes.Buffer{}, &kycFlags{skipCodeCheck: true})
	require.NoError(t, err)
	t.Cleanup(env.close)
	return env
}

func TestOpenKYC_NoProvider(t *testing.T) {
	isolate(t)
	artifactPath = testArtifact

	_, err := openKYC(context.Background(), &bytes.Buffer{}, &kycFlags{})
	assert.ErrorIs(t, err, wallet.ErrNoProvider)
}

func TestOpenKYC_MissingArtifact(t *testing.T) {
	startGanache(t, "5777")
	artifactPath = "testdata/none.json"

	_, err := openKYC(context.Background(), &bytes.Buffer{}, &kycFlags{})
	assert.Error(t, err)
}

func TestRunKYCConnect(t *testing.T) {
	startGanache(t, "5777")
	env := openTestKYC(t)

	var out bytes.Buffer
	require.NoError(t, runKYCConnect(context.Background(), &out, env))
	assert.Contains(t, out.String(), "Connected Wallet: 0x1111111111111111111111111111111111111111")
	assert.Contains(t, out.String(), "Contract:         0x3333333333333333333333333333333333333333")
	assert.Contains(t, out.String(), kyc.MsgContractLoaded)
	assert.Contains(t, out.String(), "Ganache")
	assert.Contains(t, out.String(), "Balance:          1.0000 ETH")
}

func TestRunKYCConnect_NotDeployed(t *testing.T) {
	startGanache(t, "1")
	env := openTestKYC(t)

	var out bytes.Buffer
	err := runKYCConnect(context.Background(), &out, env)
	assert.ErrorIs(t, err, artifact.ErrNotDeployed)
	assert.Equal(t, 1, strings.Count(out.String(), "Connected Wallet: 0x1111111111111111111111111111111111111111"))
	assert.Contains(t, out.String(), kyc.MsgNotDeployed)
}

func TestRunKYCRegister(t *testing.T) {
	node := startGanache(t, "5777")
	env := openTestKYC(t)

	var out bytes.Buffer
	err := runKYCRegister(context.Background(), &out, env, kyc.RegistrationInput{
		Name: "Asha", Age: "29", Email: "asha@example.com", AadharID: "123412341234",
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), kyc.ProcessingLabel)
	assert.Contains(t, out.String(), "Status:           Registered")
	assert.Contains(t, out.String(), kyc.MsgRegistered)
	assert.Equal(t, 1, node.sendCount())
}

func TestRunKYCRegister_Rejected(t *testing.T) {
	tests := []struct {
		name      string
		networkID string
		input     kyc.RegistrationInput
		wantErr   error
		wantAlert string
	}{
		{
			name:      "missing fields",
			networkID: "5777",
			input:     kyc.RegistrationInput{Name: "Asha"},
			wantErr:   kyc.ErrMissingFields,
			wantAlert: kyc.MsgMissingFields,
		},
		{
			name:      "contract not loaded",
			networkID: "1",
			input:     kyc.RegistrationInput{Name: "Asha", Age: "29", Email: "a@b.c", AadharID: "1"},
			wantErr:   kyc.ErrContractNotLoaded,
			wantAlert: kyc.MsgContractNotLoaded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := startGanache(t, tt.networkID)
			env := openTestKYC(t)

			var out bytes.Buffer
			err := runKYCRegister(context.Background(), &out, env, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, out.String(), tt.wantAlert)
			assert.Equal(t, 1, strings.Count(out.String(), "Connected Wallet:"))
			assert.NotContains(t, out.String(), kyc.ProcessingLabel)
			assert.Equal(t, 0, node.sendCount())
		})
	}
}

func TestRunKYCStatus(t *testing.T) {
	tests := []struct {
		name       string
		registered bool
		want       string
	}{
		{"registered", true, "Status:           Registered\n"},
		{"not registered", false, "Status:           Not Registered\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := startGanache(t, "5777")
			node.getUser = packGetUser(t, tt.registered)
			env := openTestKYC(t)

			var out bytes.Buffer
			require.NoError(t, runKYCStatus(context.Background(), &out, env))
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestRunKYCStatus_NotDeployedPrintsOnce(t *testing.T) {
	startGanache(t, "1")
	env := openTestKYC(t)

	var out bytes.Buffer
	err := runKYCStatus(context.Background(), &out, env)
	assert.ErrorIs(t, err, kyc.ErrContractNotLoaded)
	assert.Equal(t, 1, strings.Count(out.String(), "Connected Wallet:"))
	assert.Contains(t, out.String(), kyc.MsgContractNotLoaded)
}

func TestReadSecret(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader("1234 5678 9012\n"))
	var prompt bytes.Buffer
	cmd.SetErr(&prompt)

	got, err := readSecret(cmd, "Aadhar number: ")
	require.NoError(t, err)
	assert.Equal(t, "1234 5678 9012", got)
	assert.Equal(t, "Aadhar number: ", prompt.String())
}

func TestReadSecret_EOFWithoutNewline(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader("4321"))
	cmd.SetErr(&bytes.Buffer{})

	got, err := readSecret(cmd, "> ")
	require.NoError(t, err)
	assert.Equal(t, "4321", got)
}
