package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	landURL      string
	serverURL    string
	rpcURL       string
	artifactPath string
	verbose      bool
)

// Defaults used when no flag, env var or config file sets a value
const (
	defaultLandURL  = "http://localhost:5000"
	defaultServer   = "http://localhost:8090"
	defaultArtifact = "build/contracts/KYC.json"
)

// Execute runs the CLI
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dappkit",
		Short: "Client toolkit for the land registry, KYC and form autosave flows",
		Long: `dappkit drives the land registry backend, the KYC smart contract and the
form snapshot service from a terminal.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "project config file (default: dappkit.toml)")
	rootCmd.PersistentFlags().StringVar(&landURL, "land-url", "", "land registry backend URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "dappkit-server URL (default from config)")
	rootCmd.PersistentFlags().StringVar(&rpcURL, "rpc", "", "wallet JSON-RPC endpoint (default from config)")
	rootCmd.PersistentFlags().StringVar(&artifactPath, "artifact", "", "KYC contract artifact (default from config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")

	rootCmd.AddCommand(createLandCmd())
	rootCmd.AddCommand(createKYCCmd())
	rootCmd.AddCommand(createFormCmd())
	rootCmd.AddCommand(createConfigCmd())

	return rootCmd
}

// newLogger returns the CLI logger: warnings only unless --verbose
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// resolve picks a setting from flag, env, project config, global config, then default
func resolve(flagValue, env string, project func(*ProjectConfig) string, global func(*GlobalConfig) string, def string) string {
	// 1. Command line flag
	if flagValue != "" {
		return flagValue
	}

	// 2. Environment variable
	if v := os.Getenv(env); v != "" {
		return v
	}

	// 3. Project config file (TOML)
	if pc := loadProjectConfigSilent(); pc != nil {
		if v := project(pc); v != "" {
			return v
		}
	}

	// 4. Global config file (YAML)
	if gc := loadGlobalConfigSilent(); gc != nil {
		if v := global(gc); v != "" {
			return v
		}
	}

	return def
}

func getLandURL() string {
	return resolve(landURL, "DAPPKIT_LAND_URL",
		func(c *ProjectConfig) string { return c.LandRegistry },
		func(c *GlobalConfig) string { return c.LandRegistry },
		defaultLandURL)
}

func getServer() string {
	return resolve(serverURL, "DAPPKIT_SERVER",
		func(c *ProjectConfig) string { return c.Server },
		func(c *GlobalConfig) string { return c.Server },
		defaultServer)
}

// getRPC has no default: without an endpoint there is no wallet provider
func getRPC() string {
	return resolve(rpcURL, "DAPPKIT_RPC_URL",
		func(c *ProjectConfig) string { return c.RPC },
		func(c *GlobalConfig) string { return c.RPC },
		"")
}

func getArtifact() string {
	return resolve(artifactPath, "DAPPKIT_ARTIFACT",
		func(c *ProjectConfig) string { return c.Artifact },
		func(c *GlobalConfig) string { return c.Artifact },
		defaultArtifact)
}
