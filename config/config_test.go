package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/gluon/log"
	"github.com/spacemeshos/gluon/recon"
)

const testConfig = `
log-level: debug
metrics: true
metrics-address: 127.0.0.1:0
recon:
  id-prefix-size: 6
  sizing: graphene
  message-timeout: 5s
transport:
  listen: 127.0.0.1:9000
  peer: 127.0.0.1:9001
blocksource:
  cache-dir: /tmp/blocks
node:
  block: "000000000000000000024bead8df69990852c202db0e0097c1a12ea637d7e96d"
  pool-blocks: aa,bb
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, testConfig)
	conf, err := Load(path, viper.New())
	require.NoError(t, err)

	want := DefaultConfig()
	want.ConfigFile = path
	want.Log.Level = "debug"
	want.Metrics.Enabled = true
	want.Metrics.Address = "127.0.0.1:0"
	want.Recon.IDPrefixSize = 6
	want.Recon.Sizing = recon.SizingGraphene
	want.Recon.MessageTimeout = 5 * time.Second
	want.Transport.Listen = "127.0.0.1:9000"
	want.Transport.Peer = "127.0.0.1:9001"
	want.BlockSource.CacheDir = "/tmp/blocks"
	want.Node.Block = "000000000000000000024bead8df69990852c202db0e0097c1a12ea637d7e96d"
	want.Node.PoolBlocks = []string{"aa", "bb"}
	require.Equal(t, &want, conf)
}

func TestLoadDefaults(t *testing.T) {
	conf, err := Load("", viper.New())
	require.NoError(t, err)
	want := DefaultConfig()
	require.Equal(t, &want, conf)
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, testConfig)
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("listen", "", "")
	require.NoError(t, flags.Parse([]string{"--listen", "127.0.0.1:9500"}))

	vip := viper.New()
	require.NoError(t, vip.BindPFlag("transport.listen", flags.Lookup("listen")))
	conf, err := Load(path, vip)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9500", conf.Transport.Listen)
	require.Equal(t, "127.0.0.1:9001", conf.Transport.Peer)
}

func TestLoadErrors(t *testing.T) {
	for _, tc := range []struct {
		desc    string
		content string
	}{
		{
			desc:    "bad prefix size",
			content: "recon:\n  id-prefix-size: 40\n",
		},
		{
			desc:    "bad duration",
			content: "recon:\n  message-timeout: soon\n",
		},
		{
			desc:    "bad log level",
			content: "log-level: loud\n",
		},
		{
			desc:    "missing metrics address",
			content: "metrics: true\nmetrics-address: \"\"\n",
		},
		{
			desc:    "bad cache size",
			content: "blocksource:\n  cache-size: 0\n",
		},
		{
			desc:    "not yaml",
			content: "recon: [",
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content), viper.New())
			require.Error(t, err)
			var fatal *log.FatalError
			require.True(t, errors.As(err, &fatal))
			require.Equal(t, "ERR_MALFORMED_CONFIG", fatal.Code)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"), viper.New())
	require.Error(t, err)
}
