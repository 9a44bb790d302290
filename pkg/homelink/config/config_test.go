package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestDefaults(t *testing.T) {
	cfg, diags := Load()
	require.False(t, diags.HasErrors(), diags.Error())

	assert.Equal(t, DefaultPageURL, cfg.PageURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 5, cfg.Channel.MaxRetries)
	assert.Equal(t, 3*time.Second, cfg.Channel.BaseDelay)
	assert.Equal(t, 3, cfg.Request.MaxRetries)
	assert.Equal(t, time.Second, cfg.Request.RetryDelay)
	assert.Equal(t, `{"type":"ping"}`, cfg.Channel.KeepaliveMessage)
	assert.Empty(t, cfg.Channel.Keepalive)

	home, err := homedir.Dir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".homelink", "credentials.db"), cfg.Credentials.Path)
}

func TestLoad(t *testing.T) {
	t.Setenv("HOMELINK_TEST_HOST", "ha.local:8123")

	src := []byte(`
page_url  = "https://${env.HOMELINK_TEST_HOST}/api/hassio_ingress/abc/"
log_level = upper("debug")

channel {
  max_retries       = 2
  base_delay        = "500ms"
  dial_timeout      = 5
  write_timeout     = "PT2S"
  read_limit        = 4096
  keepalive         = "*/5 * * * *"
  keepalive_message = jsonencode({ type = "ping", source = "cli" })
}

request {
  max_retries = 4
  retry_delay = 0.25
  timeout     = "PT1M"
}

credentials {
  path = ":memory:"
}
`)

	cfg, diags := Load(src)
	require.False(t, diags.HasErrors(), diags.Error())

	assert.Equal(t, "https://ha.local:8123/api/hassio_ingress/abc/", cfg.PageURL)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, ChannelConfig{
		MaxRetries:       2,
		BaseDelay:        500 * time.Millisecond,
		DialTimeout:      5 * time.Second,
		WriteTimeout:     2 * time.Second,
		ReadLimit:        4096,
		Keepalive:        "*/5 * * * *",
		KeepaliveMessage: `{"source":"cli","type":"ping"}`,
	}, cfg.Channel)
	assert.Equal(t, RequestConfig{
		MaxRetries: 4,
		RetryDelay: 250 * time.Millisecond,
		Timeout:    time.Minute,
	}, cfg.Request)
	assert.Equal(t, ":memory:", cfg.Credentials.Path)
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "10-base.hcl"), []byte(`
page_url = "http://a.local/"
request {
  max_retries = 5
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20-override.hcl"), []byte(`
page_url = "http://b.local/"
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`not hcl {`), 0o644))

	cfg, diags := Load(dir)
	require.False(t, diags.HasErrors(), diags.Error())
	assert.Equal(t, "http://b.local/", cfg.PageURL)
	assert.Equal(t, 5, cfg.Request.MaxRetries)

	cfg, diags = Load(filepath.Join(dir, "10-base.hcl"), []byte(`log_level = "warn"`))
	require.False(t, diags.HasErrors(), diags.Error())
	assert.Equal(t, "http://a.local/", cfg.PageURL)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		src  any
	}{
		{"missing file", "/nonexistent/homelink.hcl"},
		{"bad syntax", []byte(`page_url = `)},
		{"unknown attribute", []byte(`colour = "blue"`)},
		{"bad page url", []byte(`page_url = "not a url"`)},
		{"bad duration", []byte("channel {\n base_delay = \"soon\"\n}")},
		{"negative duration", []byte("request {\n retry_delay = -1\n}")},
		{"bad cron", []byte("channel {\n keepalive = \"every minute\"\n}")},
		{"zero request retries", []byte("request {\n max_retries = 0\n}")},
		{"bad source type", 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, diags := Load(tt.src)
			assert.True(t, diags.HasErrors())
			assert.Nil(t, cfg)
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"30", 30 * time.Second, false},
		{"1.5", 1500 * time.Millisecond, false},
		{"0", 0, false},
		{`"PT5M"`, 5 * time.Minute, false},
		{`"P1D"`, 24 * time.Hour, false},
		{`"90s"`, 90 * time.Second, false},
		{`" 2m "`, 2 * time.Minute, false},
		{"-5", 0, true},
		{`"-1s"`, 0, true},
		{`"PXYZ"`, 0, true},
		{`"soon"`, 0, true},
		{"true", 0, true},
		{"null", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			expr, diags := hclsyntax.ParseExpression([]byte(tt.input), "test.hcl", hcl.InitialPos)
			require.False(t, diags.HasErrors())

			got, diags := parseDuration(expr, &hcl.EvalContext{})
			if tt.wantErr {
				assert.True(t, diags.HasErrors())
				return
			}
			require.False(t, diags.HasErrors(), diags.Error())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnvObject(t *testing.T) {
	t.Setenv("HOMELINK_ENV_CHECK", "yes")

	env := EnvObject()
	require.True(t, env.Type().IsObjectType())
	assert.Equal(t, cty.StringVal("yes"), env.GetAttr("HOMELINK_ENV_CHECK"))

	assert.Equal(t, "_", identifier(""))
	assert.Equal(t, "_ABC", identifier("1ABC"))
	assert.Equal(t, "MY-HOME_URL", identifier("MY-HOME.URL"))
}
