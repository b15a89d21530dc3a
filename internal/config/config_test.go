package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func setEnv(t *testing.T, key, val string) {
	old, had := os.LookupEnv(key)
	os.Setenv(key, val)
	t.Cleanup(func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

func TestLoadEnv_MissingSessionNamesFails(t *testing.T) {
	clearEnv(t, "SESSION_NAMES", "SOURCE_CHANNEL", "TARGET_CHANNELS")
	setEnv(t, "SOURCE_CHANNEL", "@chan")
	setEnv(t, "TARGET_CHANNELS", "@a")
	_, err := LoadEnv()
	assert.Error(t, err)
}

func TestLoadEnv_DefaultsApplied(t *testing.T) {
	setEnv(t, "SESSION_NAMES", "s1, s2")
	setEnv(t, "SOURCE_CHANNEL", "@chan")
	setEnv(t, "TARGET_CHANNELS", "@a,@b")
	cfg, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, cfg.SessionNames)
	assert.Equal(t, []string{"@a", "@b"}, cfg.TargetChannels)
	assert.Equal(t, 200, cfg.FetchBatchSize)
	assert.Equal(t, 20.0, cfg.DownloadThresholdMB)
	assert.Equal(t, 10, cfg.ConcurrentDownloads)
	assert.Equal(t, 10, cfg.StageBatchSize)
	assert.True(t, cfg.CleanupOnSuccess)
	assert.False(t, cfg.CleanupOnFailure)
	assert.Equal(t, "original", cfg.TemplateMode)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, 0.3, cfg.ImbalanceRatioCap)
}

func TestLoadEnv_ParsesIDRange(t *testing.T) {
	setEnv(t, "SESSION_NAMES", "s1")
	setEnv(t, "SOURCE_CHANNEL", "@chan")
	setEnv(t, "TARGET_CHANNELS", "@a")
	setEnv(t, "ID_RANGE", "100-200")
	cfg, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.IDRangeStart)
	assert.Equal(t, 200, cfg.IDRangeEnd)
}

func TestLoadEnv_InvalidIDRangeFails(t *testing.T) {
	setEnv(t, "SESSION_NAMES", "s1")
	setEnv(t, "SOURCE_CHANNEL", "@chan")
	setEnv(t, "TARGET_CHANNELS", "@a")
	setEnv(t, "ID_RANGE", "not-a-range")
	_, err := LoadEnv()
	assert.Error(t, err)
}

func TestConfig_CredentialsAndWorkloadDeriveCorrectly(t *testing.T) {
	setEnv(t, "SESSION_NAMES", "s1")
	setEnv(t, "SOURCE_CHANNEL", "@chan")
	setEnv(t, "TARGET_CHANNELS", "@a")
	setEnv(t, "SESSION_BOT_TOKENS", "s1=tok1")
	setEnv(t, "PROXY_SCHEME", "socks5")
	cfg, err := LoadEnv()
	require.NoError(t, err)

	creds := cfg.Credentials("s1")
	assert.Equal(t, "s1", creds.Name)
	assert.Equal(t, "tok1", creds.BotToken)
	assert.Equal(t, "socks5", creds.Proxy.Scheme)

	wl := cfg.Workload()
	assert.Equal(t, "@chan", wl.SourceChannel)
	assert.Equal(t, []string{"@a"}, wl.TargetChannels)
}

func TestParseBotTokens(t *testing.T) {
	got := parseKVPairs("a=1, b=2")
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got)
}

func TestSplitCSV_EmptyReturnsNil(t *testing.T) {
	assert.Nil(t, splitCSV(""))
}
