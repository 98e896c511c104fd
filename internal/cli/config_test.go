package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// isolate points every config source at an empty temp dir and resets the global flags
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	for _, env := range []string{"DAPPKIT_LAND_URL", "DAPPKIT_SERVER", "DAPPKIT_RPC_URL", "DAPPKIT_ARTIFACT", "DAPPKIT_SESSION"} {
		t.Setenv(env, "")
	}

	origCfg, origLand, origServer, origRPC, origArtifact, origVerbose := cfgFile, landURL, serverURL, rpcURL, artifactPath, verbose
	t.Cleanup(func() {
		cfgFile, landURL, serverURL, rpcURL, artifactPath, verbose = origCfg, origLand, origServer, origRPC, origArtifact, origVerbose
	})
	cfgFile = filepath.Join(dir, "dappkit.toml")
	landURL, serverURL, rpcURL, artifactPath, verbose = "", "", "", "", false
	return dir
}

func writeGlobalConfig(t *testing.T, home string, cfg GlobalConfig) {
	t.Helper()
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".dappkit"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".dappkit", "config.yaml"), data, 0644))
}

func TestResolvePrecedence(t *testing.T) {
	t.Run("default when nothing set", func(t *testing.T) {
		isolate(t)
		assert.Equal(t, defaultLandURL, getLandURL())
		assert.Equal(t, defaultServer, getServer())
		assert.Equal(t, defaultArtifact, getArtifact())
		assert.Empty(t, getRPC())
	})

	t.Run("global config", func(t *testing.T) {
		home := isolate(t)
		writeGlobalConfig(t, home, GlobalConfig{LandRegistry: "http://global:5000", RPC: "http://global:8545"})
		assert.Equal(t, "http://global:5000", getLandURL())
		assert.Equal(t, "http://global:8545", getRPC())
		assert.Equal(t, defaultServer, getServer())
	})

	t.Run("project config beats global", func(t *testing.T) {
		home := isolate(t)
		writeGlobalConfig(t, home, GlobalConfig{LandRegistry: "http://global:5000"})
		require.NoError(t, os.WriteFile(cfgFile, []byte(`land_registry = "http://project:5000"`), 0644))
		assert.Equal(t, "http://project:5000", getLandURL())
	})

	t.Run("env beats project config", func(t *testing.T) {
		isolate(t)
		require.NoError(t, os.WriteFile(cfgFile, []byte(`land_registry = "http://project:5000"`), 0644))
		t.Setenv("DAPPKIT_LAND_URL", "http://env:5000")
		assert.Equal(t, "http://env:5000", getLandURL())
	})

	t.Run("flag beats env", func(t *testing.T) {
		isolate(t)
		t.Setenv("DAPPKIT_LAND_URL", "http://env:5000")
		landURL = "http://flag:5000"
		assert.Equal(t, "http://flag:5000", getLandURL())
	})

	t.Run("broken project config falls through", func(t *testing.T) {
		isolate(t)
		require.NoError(t, os.WriteFile(cfgFile, []byte(`land_registry = `), 0644))
		assert.Equal(t, defaultLandURL, getLandURL())
	})
}

func TestKYCConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		isolate(t)
		cfg, err := kycConfig(0, 0, false)
		require.NoError(t, err)
		assert.Equal(t, 15*time.Second, cfg.StepTimeout)
		assert.True(t, cfg.VerifyCode)
	})

	t.Run("project table then flags", func(t *testing.T) {
		isolate(t)
		require.NoError(t, os.WriteFile(cfgFile, []byte(`
[kyc]
step_timeout = "3s"
tx_timeout = "45s"
verify_code = false
`), 0644))

		cfg, err := kycConfig(0, 0, false)
		require.NoError(t, err)
		assert.Equal(t, 3*time.Second, cfg.StepTimeout)
		assert.Equal(t, 45*time.Second, cfg.TxTimeout)
		assert.False(t, cfg.VerifyCode)

		cfg, err = kycConfig(time.Second, 0, true)
		require.NoError(t, err)
		assert.Equal(t, time.Second, cfg.StepTimeout)
		assert.Equal(t, 45*time.Second, cfg.TxTimeout)
	})

	t.Run("bad duration", func(t *testing.T) {
		isolate(t)
		require.NoError(t, os.WriteFile(cfgFile, []byte("[kyc]\nstep_timeout = \"soon\"\n"), 0644))
		_, err := kycConfig(0, 0, false)
		assert.Error(t, err)
	})
}

func TestConfigInit(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "dappkit.toml")

	var out bytes.Buffer
	require.NoError(t, runConfigInit(&out, path, "http://127.0.0.1:7545", false))
	assert.Contains(t, out.String(), "Created")

	pc, _, err := loadProjectConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:7545", pc.RPC)
	assert.Equal(t, defaultArtifact, pc.Artifact)
	assert.Equal(t, "15s", pc.KYC.StepTimeout)
	require.NotNil(t, pc.KYC.VerifyCode)
	assert.True(t, *pc.KYC.VerifyCode)

	err = runConfigInit(&out, path, "http://127.0.0.1:7545", false)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, runConfigInit(&out, path, "http://127.0.0.1:8545", true))
	pc, _, err = loadProjectConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8545", pc.RPC)
}

func TestConfigShow(t *testing.T) {
	isolate(t)
	t.Setenv("DAPPKIT_SERVER", "http://env:8090")

	var out bytes.Buffer
	require.NoError(t, runConfigShow(&out))
	assert.Contains(t, out.String(), "DAPPKIT_SERVER=http://env:8090")
	assert.Contains(t, out.String(), "(not found)")
	assert.Contains(t, out.String(), "RPC:           (not set)")
}
