package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/params"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pendergraft/dappkit/internal/artifact"
	"github.com/pendergraft/dappkit/internal/kyc"
	"github.com/pendergraft/dappkit/internal/wallet"
)

// kycFlags are shared by the kyc subcommands
type kycFlags struct {
	stepTimeout   time.Duration
	txTimeout     time.Duration
	skipCodeCheck bool
}

func (f *kycFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().DurationVar(&f.stepTimeout, "step-timeout", 0, "timeout for each wallet call (default 15s)")
	cmd.PersistentFlags().DurationVar(&f.txTimeout, "tx-timeout", 0, "timeout for a transaction to be mined (default 2m)")
	cmd.PersistentFlags().BoolVar(&f.skipCodeCheck, "skip-code-check", false, "do not compare on-chain code with the artifact")
}

func createKYCCmd() *cobra.Command {
	flags := &kycFlags{}

	cmd := &cobra.Command{
		Use:   "kyc",
		Short: "KYC contract commands",
		Long: `Connect a wallet to the KYC contract, register, and check registration status.

The wallet is any JSON-RPC endpoint that manages accounts (ganache, anvil,
or a signing proxy). The contract address comes from the truffle artifact's
networks map for the wallet's network.
`,
	}
	flags.register(cmd)

	cmd.AddCommand(createKYCConnectCmd(flags))
	cmd.AddCommand(createKYCRegisterCmd(flags))
	cmd.AddCommand(createKYCStatusCmd(flags))

	return cmd
}

func createKYCConnectCmd(flags *kycFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Check the wallet and load the contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openKYC(cmd.Context(), cmd.ErrOrStderr(), flags)
			if err != nil {
				return err
			}
			defer env.close()
			return runKYCConnect(cmd.Context(), cmd.OutOrStdout(), env)
		},
	}
}

func createKYCRegisterCmd(flags *kycFlags) *cobra.Command {
	var in kyc.RegistrationInput

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register the connected account for KYC",
		Long: `Register the connected account with the KYC contract.

The Aadhar number is prompted for without echo unless --aadhar is given.

EXAMPLES:
  dappkit kyc register --name "Asha Rao" --age 29 --email asha@example.com
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.AadharID == "" {
				secret, err := readSecret(cmd, "Aadhar number: ")
				if err != nil {
					return err
				}
				in.AadharID = secret
			}

			env, err := openKYC(cmd.Context(), cmd.ErrOrStderr(), flags)
			if err != nil {
				return err
			}
			defer env.close()
			return runKYCRegister(cmd.Context(), cmd.OutOrStdout(), env, in)
		},
	}

	cmd.Flags().StringVar(&in.Name, "name", "", "full name")
	cmd.Flags().StringVar(&in.Age, "age", "", "age in years")
	cmd.Flags().StringVar(&in.Email, "email", "", "email address")
	cmd.Flags().StringVar(&in.AadharID, "aadhar", "", "Aadhar number (prompted when omitted)")

	return cmd
}

func createKYCStatusCmd(flags *kycFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the connected account's KYC status",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openKYC(cmd.Context(), cmd.ErrOrStderr(), flags)
			if err != nil {
				return err
			}
			defer env.close()
			return runKYCStatus(cmd.Context(), cmd.OutOrStdout(), env)
		},
	}
}

// kycEnv is a dialed provider with the loaded artifact
type kycEnv struct {
	cfg      kyc.Config
	provider *wallet.RPCProvider
	artifact *artifact.Artifact
}

func (e *kycEnv) close() {
	e.provider.Close()
}

func openKYC(ctx context.Context, logOut io.Writer, flags *kycFlags) (*kycEnv, error) {
	cfg, err := kycConfig(flags.stepTimeout, flags.txTimeout, flags.skipCodeCheck)
	if err != nil {
		return nil, err
	}
	logger := newLogger(logOut)
	cfg.Logger = logger

	art, err := artifact.Load(getArtifact())
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.StepTimeout)
	defer cancel()
	p, err := wallet.Dial(dialCtx, getRPC(), logger)
	if err != nil {
		return nil, err
	}
	return &kycEnv{cfg: cfg, provider: p, artifact: art}, nil
}

// connect bootstraps. The view is printed here only when the session is
// unusable; otherwise the caller prints it once with its own outcome.
func connect(ctx context.Context, w io.Writer, env *kycEnv) (*kyc.Session, kyc.View, error) {
	v := kyc.NewView()
	s, err := kyc.Bootstrap(ctx, env.cfg, env.provider, env.artifact)
	if err != nil {
		v = kyc.BootstrapFailed(v, s, err)
		if !usable(s, err) {
			printView(w, v)
		}
		return s, v, err
	}
	v = kyc.Connected(v, s)
	return s, v, nil
}

// usable reports whether the actions can run; a session whose contract is not
// deployed still runs them so they report the missing contract
func usable(s *kyc.Session, err error) bool {
	return err == nil || (s != nil && errors.Is(err, artifact.ErrNotDeployed))
}

func runKYCConnect(ctx context.Context, w io.Writer, env *kycEnv) error {
	s, v, err := connect(ctx, w, env)
	if err != nil {
		if usable(s, err) {
			printView(w, v)
		}
		return err
	}
	printView(w, v)
	fmt.Fprintf(w, "Provider:         %s\n", env.provider.ClientVersion())
	fmt.Fprintf(w, "Network:          %s\n", s.NetworkID)

	balCtx, cancel := context.WithTimeout(ctx, env.cfg.StepTimeout)
	defer cancel()
	if bal, err := env.provider.Balance(balCtx, s.Account); err == nil {
		eth := new(big.Float).Quo(new(big.Float).SetInt(bal), big.NewFloat(params.Ether))
		fmt.Fprintf(w, "Balance:          %s ETH\n", eth.Text('f', 4))
	} else {
		env.cfg.Logger.Debug("balance lookup failed", "error", err)
	}
	return nil
}

func runKYCRegister(ctx context.Context, w io.Writer, env *kycEnv, in kyc.RegistrationInput) error {
	s, v, err := connect(ctx, w, env)
	if !usable(s, err) {
		return err
	}

	// The contract and form checks run before the request goes out
	if _, verr := in.Validate(); s.Handle != nil && verr == nil {
		v = kyc.BeginRegister(v)
		fmt.Fprintln(w, v.ButtonText)
	}

	res, err := s.Handle.Register(ctx, in)
	v = kyc.FinishRegister(v, res, err)
	printView(w, v)
	return err
}

func runKYCStatus(ctx context.Context, w io.Writer, env *kycEnv) error {
	s, v, err := connect(ctx, w, env)
	if !usable(s, err) {
		return err
	}

	registered, err := s.Handle.Status(ctx)
	v = kyc.FinishStatus(kyc.Alert(v, ""), registered, err)
	printView(w, v)
	return err
}

func printView(w io.Writer, v kyc.View) {
	fmt.Fprintf(w, "Connected Wallet: %s\n", v.Account)
	if v.Contract != "" {
		fmt.Fprintf(w, "Contract:         %s\n", v.Contract)
	}
	if v.Status != "" {
		fmt.Fprintf(w, "Status:           %s\n", v.Status)
	}
	if v.Alert != "" {
		fmt.Fprintln(w, v.Alert)
	}
}

// readSecret prompts without echo on a terminal and reads a line otherwise
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)

	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr()) // New line after hidden input
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
