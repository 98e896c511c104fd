package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pendergraft/dappkit/internal/kyc"
)

const projectConfigFile = "dappkit.toml"

// ProjectConfig is the project-level TOML configuration
type ProjectConfig struct {
	LandRegistry string        `toml:"land_registry,omitempty"`
	Server       string        `toml:"server,omitempty"`
	RPC          string        `toml:"rpc,omitempty"`
	Artifact     string        `toml:"artifact,omitempty"`
	KYC          KYCConfigTOML `toml:"kyc,omitempty"`
}

// KYCConfigTOML tunes the wallet and contract interaction
type KYCConfigTOML struct {
	StepTimeout string `toml:"step_timeout,omitempty"`
	TxTimeout   string `toml:"tx_timeout,omitempty"`
	VerifyCode  *bool  `toml:"verify_code,omitempty"`
}

// GlobalConfig is the per-user configuration (stored in ~/.dappkit/config.yaml)
type GlobalConfig struct {
	LandRegistry string `yaml:"land_registry,omitempty"`
	Server       string `yaml:"server,omitempty"`
	RPC          string `yaml:"rpc,omitempty"`
	Artifact     string `yaml:"artifact,omitempty"`
}

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var rpc string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create a dappkit.toml configuration file in the current directory.

EXAMPLES:
  # Create config pointing at a local ganache
  dappkit config init

  # Use another wallet endpoint
  dappkit config init --rpc http://127.0.0.1:8545

  # Overwrite existing config
  dappkit config init --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd.OutOrStdout(), projectConfigFile, rpc, force)
		},
	}

	cmd.Flags().StringVar(&rpc, "rpc", "http://127.0.0.1:7545", "wallet JSON-RPC endpoint")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		Long: `Display the configuration sources and the effective settings.

Precedence: flags, then DAPPKIT_* environment variables, then dappkit.toml,
then ~/.dappkit/config.yaml.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}
}

func runConfigInit(w io.Writer, path, rpc string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	content := fmt.Sprintf(`# dappkit project configuration

land_registry = "%s"
server = "%s"
rpc = "%s"
artifact = "%s"

[kyc]
step_timeout = "15s"
tx_timeout = "2m"
verify_code = true
`, defaultLandURL, defaultServer, rpc, defaultArtifact)

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(w, "Created %s\n", path)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintf(w, "  1. Edit %s to point at your backend and wallet\n", path)
	fmt.Fprintln(w, "  2. Run 'dappkit kyc connect' to check the wallet and contract")
	return nil
}

func runConfigShow(w io.Writer) error {
	fmt.Fprintln(w, "Configuration sources (in order of precedence):")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "1. Command line flags")
	fmt.Fprintln(w, "   --land-url, --server, --rpc, --artifact, --config")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "2. Environment variables")
	for _, name := range []string{"DAPPKIT_LAND_URL", "DAPPKIT_SERVER", "DAPPKIT_RPC_URL", "DAPPKIT_ARTIFACT", "DAPPKIT_SESSION"} {
		if v := os.Getenv(name); v != "" {
			fmt.Fprintf(w, "   %s=%s\n", name, v)
		} else {
			fmt.Fprintf(w, "   %s=(not set)\n", name)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "3. Project config (%s)\n", projectConfigFile)
	pc, path, err := loadProjectConfig()
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintln(w, "   (not found)")
	case err != nil:
		fmt.Fprintf(w, "   Error: %v\n", err)
	default:
		fmt.Fprintf(w, "   Loaded from: %s\n", path)
		printSetting(w, "land_registry", pc.LandRegistry)
		printSetting(w, "server", pc.Server)
		printSetting(w, "rpc", pc.RPC)
		printSetting(w, "artifact", pc.Artifact)
		printSetting(w, "kyc.step_timeout", pc.KYC.StepTimeout)
		printSetting(w, "kyc.tx_timeout", pc.KYC.TxTimeout)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "4. Global config (%s)\n", globalConfigPath())
	gc, err := loadGlobalConfig()
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintln(w, "   (not found)")
	case err != nil:
		fmt.Fprintf(w, "   Error: %v\n", err)
	default:
		printSetting(w, "land_registry", gc.LandRegistry)
		printSetting(w, "server", gc.Server)
		printSetting(w, "rpc", gc.RPC)
		printSetting(w, "artifact", gc.Artifact)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Effective configuration:")
	fmt.Fprintf(w, "   Land registry: %s\n", getLandURL())
	fmt.Fprintf(w, "   Server:        %s\n", getServer())
	if rpc := getRPC(); rpc != "" {
		fmt.Fprintf(w, "   RPC:           %s\n", rpc)
	} else {
		fmt.Fprintln(w, "   RPC:           (not set)")
	}
	fmt.Fprintf(w, "   Artifact:      %s\n", getArtifact())
	return nil
}

func printSetting(w io.Writer, name, value string) {
	if value != "" {
		fmt.Fprintf(w, "   %s: %s\n", name, value)
	}
}

// loadProjectConfig loads --config or ./dappkit.toml.
// Returns the config, the path it was loaded from, and an error.
func loadProjectConfig() (*ProjectConfig, string, error) {
	path := cfgFile
	if path == "" {
		path = projectConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, err
	}

	var config ProjectConfig
	if _, err := toml.Decode(string(data), &config); err != nil {
		return nil, path, fmt.Errorf("parsing TOML: %w", err)
	}
	return &config, path, nil
}

// loadProjectConfigSilent returns nil for a missing file and warns on parse failures
func loadProjectConfigSilent() *ProjectConfig {
	config, _, err := loadProjectConfig()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load project config: %v\n", err)
		}
		return nil
	}
	return config
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dappkit"
	}
	return filepath.Join(home, ".dappkit")
}

func globalConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func loadGlobalConfig() (*GlobalConfig, error) {
	data, err := os.ReadFile(globalConfigPath())
	if err != nil {
		return nil, err
	}

	var config GlobalConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return &config, nil
}

func loadGlobalConfigSilent() *GlobalConfig {
	config, err := loadGlobalConfig()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load global config: %v\n", err)
		}
		return nil
	}
	return config
}

// kycConfig layers the project's [kyc] table and command flags over the defaults
func kycConfig(stepTimeout, txTimeout time.Duration, skipCodeCheck bool) (kyc.Config, error) {
	cfg := kyc.DefaultConfig()

	if pc := loadProjectConfigSilent(); pc != nil {
		if pc.KYC.StepTimeout != "" {
			d, err := time.ParseDuration(pc.KYC.StepTimeout)
			if err != nil {
				return cfg, fmt.Errorf("kyc.step_timeout: %w", err)
			}
			cfg.StepTimeout = d
		}
		if pc.KYC.TxTimeout != "" {
			d, err := time.ParseDuration(pc.KYC.TxTimeout)
			if err != nil {
				return cfg, fmt.Errorf("kyc.tx_timeout: %w", err)
			}
			cfg.TxTimeout = d
		}
		if pc.KYC.VerifyCode != nil {
			cfg.VerifyCode = *pc.KYC.VerifyCode
		}
	}

	if stepTimeout > 0 {
		cfg.StepTimeout = stepTimeout
	}
	if txTimeout > 0 {
		cfg.TxTimeout = txTimeout
	}
	if skipCodeCheck {
		cfg.VerifyCode = false
	}
	return cfg, nil
}
