// Package config loads homelink settings from HCL files.
//
// A file looks like:
//
//	page_url  = "https://${env.HA_HOST}/api/hassio_ingress/abc/"
//	log_level = "info"
//
//	channel {
//	  max_retries       = 5
//	  base_delay        = "3s"
//	  keepalive         = "*/1 * * * *"
//	  keepalive_message = jsonencode({ type = "ping" })
//	}
//
//	request {
//	  max_retries = 3
//	  retry_delay = 1
//	  timeout     = "PT30S"
//	}
//
//	credentials {
//	  path = "~/.homelink/credentials.db"
//	}
package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/mitchellh/go-homedir"
	"github.com/tsarna/homelink/pkg/homelink/channel"
	"github.com/tsarna/homelink/pkg/homelink/endpoint"
	"github.com/tsarna/homelink/pkg/homelink/request"
	"github.com/tsarna/homelink/pkg/homelink/watch"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

const (
	DefaultPageURL          = "http://localhost:8000/"
	DefaultLogLevel         = "info"
	DefaultCredentialsPath  = "~/.homelink/credentials.db"
	DefaultKeepaliveMessage = `{"type":"ping"}`
)

// Config is the resolved configuration.
type Config struct {
	PageURL     string
	LogLevel    string
	Channel     ChannelConfig
	Request     RequestConfig
	Credentials CredentialsConfig
}

type ChannelConfig struct {
	MaxRetries   int
	BaseDelay    time.Duration
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
	// Keepalive is a cron spec; empty disables keepalive messages.
	Keepalive        string
	KeepaliveMessage string
}

type RequestConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

type CredentialsConfig struct {
	// Path of the SQLite credential database, with "~" expanded.
	// ":memory:" keeps credentials for the life of the process.
	Path string
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		PageURL:  DefaultPageURL,
		LogLevel: DefaultLogLevel,
		Channel: ChannelConfig{
			MaxRetries:       channel.DefaultMaxRetries,
			BaseDelay:        channel.DefaultBaseDelay,
			DialTimeout:      channel.DefaultDialTimeout,
			WriteTimeout:     channel.DefaultWriteTimeout,
			ReadLimit:        channel.DefaultReadLimit,
			KeepaliveMessage: DefaultKeepaliveMessage,
		},
		Request: RequestConfig{
			MaxRetries: request.DefaultMaxRetries,
			RetryDelay: request.DefaultRetryDelay,
			Timeout:    request.DefaultTimeout,
		},
		Credentials: CredentialsConfig{
			Path: DefaultCredentialsPath,
		},
	}
}

type fileSchema struct {
	PageURL     *string           `hcl:"page_url,optional"`
	LogLevel    *string           `hcl:"log_level,optional"`
	Channel     *channelBlock     `hcl:"channel,block"`
	Request     *requestBlock     `hcl:"request,block"`
	Credentials *credentialsBlock `hcl:"credentials,block"`
}

type channelBlock struct {
	MaxRetries       *int           `hcl:"max_retries,optional"`
	BaseDelay        hcl.Expression `hcl:"base_delay,optional"`
	DialTimeout      hcl.Expression `hcl:"dial_timeout,optional"`
	WriteTimeout     hcl.Expression `hcl:"write_timeout,optional"`
	ReadLimit        *int64         `hcl:"read_limit,optional"`
	Keepalive        *string        `hcl:"keepalive,optional"`
	KeepaliveMessage *string        `hcl:"keepalive_message,optional"`
}

type requestBlock struct {
	MaxRetries *int           `hcl:"max_retries,optional"`
	RetryDelay hcl.Expression `hcl:"retry_delay,optional"`
	Timeout    hcl.Expression `hcl:"timeout,optional"`
}

type credentialsBlock struct {
	Path *string `hcl:"path,optional"`
}

// EvalContext returns the context configuration expressions are evaluated
// in: the environment as "env" plus a few string and encoding functions.
func EvalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": EnvObject(),
		},
		Functions: map[string]function.Function{
			"jsonencode": stdlib.JSONEncodeFunc,
			"lower":      stdlib.LowerFunc,
			"upper":      stdlib.UpperFunc,
			"trimsuffix": stdlib.TrimSuffixFunc,
			"format":     stdlib.FormatFunc,
		},
	}
}

// Load parses the sources over the defaults. Later sources override
// earlier ones. Sources are file or directory paths, or []byte.
func Load(sources ...any) (*Config, hcl.Diagnostics) {
	cfg := Default()

	bodies, diags := ParseFiles(sources...)
	if diags.HasErrors() {
		return nil, diags
	}

	ctx := EvalContext()
	for _, body := range bodies {
		diags = diags.Extend(cfg.apply(body, ctx))
	}
	if diags.HasErrors() {
		return nil, diags
	}

	diags = diags.Extend(cfg.finish())
	if diags.HasErrors() {
		return nil, diags
	}
	return cfg, diags
}

func (c *Config) apply(body hcl.Body, ctx *hcl.EvalContext) hcl.Diagnostics {
	var file fileSchema
	diags := gohcl.DecodeBody(body, ctx, &file)
	if diags.HasErrors() {
		return diags
	}

	if file.PageURL != nil {
		c.PageURL = *file.PageURL
	}
	if file.LogLevel != nil {
		c.LogLevel = *file.LogLevel
	}

	if ch := file.Channel; ch != nil {
		if ch.MaxRetries != nil {
			c.Channel.MaxRetries = *ch.MaxRetries
		}
		if ch.ReadLimit != nil {
			c.Channel.ReadLimit = *ch.ReadLimit
		}
		if ch.Keepalive != nil {
			c.Channel.Keepalive = *ch.Keepalive
		}
		if ch.KeepaliveMessage != nil {
			c.Channel.KeepaliveMessage = *ch.KeepaliveMessage
		}
		diags = diags.Extend(setDuration(&c.Channel.BaseDelay, ch.BaseDelay, ctx))
		diags = diags.Extend(setDuration(&c.Channel.DialTimeout, ch.DialTimeout, ctx))
		diags = diags.Extend(setDuration(&c.Channel.WriteTimeout, ch.WriteTimeout, ctx))
	}

	if rq := file.Request; rq != nil {
		if rq.MaxRetries != nil {
			c.Request.MaxRetries = *rq.MaxRetries
		}
		diags = diags.Extend(setDuration(&c.Request.RetryDelay, rq.RetryDelay, ctx))
		diags = diags.Extend(setDuration(&c.Request.Timeout, rq.Timeout, ctx))
	}

	if cr := file.Credentials; cr != nil && cr.Path != nil {
		c.Credentials.Path = *cr.Path
	}

	return diags
}

func setDuration(dst *time.Duration, expr hcl.Expression, ctx *hcl.EvalContext) hcl.Diagnostics {
	if !isProvided(expr) {
		return nil
	}
	d, diags := parseDuration(expr, ctx)
	if !diags.HasErrors() {
		*dst = d
	}
	return diags
}

// finish expands paths and validates values that cannot be checked while
// decoding.
func (c *Config) finish() hcl.Diagnostics {
	var diags hcl.Diagnostics
	invalid := func(summary, detail string) {
		diags = diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  summary,
			Detail:   detail,
		})
	}

	if _, err := endpoint.NewResolver(c.PageURL); err != nil {
		invalid("Invalid page_url", err.Error())
	}

	if c.Channel.MaxRetries < 0 {
		invalid("Invalid channel max_retries", fmt.Sprintf("must not be negative, got %d", c.Channel.MaxRetries))
	}
	if c.Request.MaxRetries < 1 {
		invalid("Invalid request max_retries", fmt.Sprintf("must be at least 1, got %d", c.Request.MaxRetries))
	}

	if c.Channel.Keepalive != "" {
		if _, err := watch.ParseSchedule(c.Channel.Keepalive); err != nil {
			invalid("Invalid channel keepalive", fmt.Sprintf("%q is not a cron schedule: %v", c.Channel.Keepalive, err))
		}
	}

	if c.Credentials.Path != ":memory:" {
		path, err := homedir.Expand(c.Credentials.Path)
		if err != nil {
			invalid("Invalid credentials path", err.Error())
		} else {
			c.Credentials.Path = path
		}
	}

	return diags
}
