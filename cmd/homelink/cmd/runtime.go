package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tsarna/homelink/pkg/homelink/channel"
	"github.com/tsarna/homelink/pkg/homelink/config"
	"github.com/tsarna/homelink/pkg/homelink/credentials"
	"github.com/tsarna/homelink/pkg/homelink/endpoint"
	"github.com/tsarna/homelink/pkg/homelink/errnorm"
	"github.com/tsarna/homelink/pkg/homelink/notify"
	"github.com/tsarna/homelink/pkg/homelink/otel"
	"github.com/tsarna/homelink/pkg/homelink/request"
	"go.uber.org/zap"
)

// runtime holds what every subcommand needs, built from config and flags.
type runtime struct {
	cfg       *config.Config
	logger    *zap.Logger
	resolver  *endpoint.Resolver
	store     *credentials.SQLiteStore
	queue     *notify.Queue
	reporter  *errnorm.Reporter
	telemetry *otel.Provider
	out       io.Writer
}

func newRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, diags := config.Load(stringSliceToAnySlice(configPaths)...)
	if diags.HasErrors() {
		return nil, diags
	}
	if pageURL != "" {
		cfg.PageURL = pageURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if credentialsPath != "" {
		cfg.Credentials.Path = credentialsPath
	}

	logger, err := setupLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	resolver, err := endpoint.NewResolver(cfg.PageURL)
	if err != nil {
		return nil, err
	}

	store, err := credentials.OpenSQLite(cmd.Context(), cfg.Credentials.Path)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		cfg:       cfg,
		logger:    logger,
		resolver:  resolver,
		store:     store,
		telemetry: otel.NewProvider("homelink", Version),
		out:       cmd.OutOrStdout(),
	}

	rt.queue = notify.NewQueue().
		WithLogger(logger).
		WithListener(printNotification(cmd.ErrOrStderr()))

	rt.reporter = errnorm.NewReporter(rt.queue).
		WithStore(store).
		WithLocation(resolver).
		WithNavigator(loginPrompt{w: cmd.ErrOrStderr()}).
		WithLogger(logger)

	logger.Debug("Runtime ready",
		zap.String("page_url", cfg.PageURL),
		zap.Stringer("mode", resolver.Mode()),
		zap.String("credentials", cfg.Credentials.Path))

	return rt, nil
}

func (rt *runtime) Close() {
	if err := rt.store.Close(); err != nil {
		rt.logger.Warn("Failed to close credential store", zap.Error(err))
	}
	_ = rt.logger.Sync()
}

func (rt *runtime) requestClient() (*request.Client, error) {
	return request.NewClient().
		WithResolver(rt.resolver).
		WithStore(rt.store).
		WithReporter(rt.reporter).
		WithMaxRetries(rt.cfg.Request.MaxRetries).
		WithRetryDelay(rt.cfg.Request.RetryDelay).
		WithTimeout(rt.cfg.Request.Timeout).
		WithLogger(rt.logger).
		WithMetricsProvider(rt.telemetry).
		WithTracingProvider(rt.telemetry).
		Build()
}

func (rt *runtime) channelClient() *channel.ClientBuilder {
	c := rt.cfg.Channel
	return channel.NewClient().
		WithURL(rt.resolver.ChannelURL()).
		WithLogger(rt.logger).
		WithMaxRetries(c.MaxRetries).
		WithBaseDelay(c.BaseDelay).
		WithDialTimeout(c.DialTimeout).
		WithWriteTimeout(c.WriteTimeout).
		WithReadLimit(c.ReadLimit).
		WithAuthorizationProvider(rt.bearer).
		WithNotifier(rt.queue).
		WithMetricsProvider(rt.telemetry)
}

// bearer supplies the stored token for the channel handshake.
func (rt *runtime) bearer(ctx context.Context) (string, error) {
	token, err := rt.store.Get(ctx, credentials.KeyToken)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", nil
	}
	return "Bearer " + token, nil
}

var noticeColors = map[notify.Kind]*color.Color{
	notify.KindSuccess: color.New(color.FgGreen),
	notify.KindError:   color.New(color.FgRed, color.Bold),
	notify.KindWarning: color.New(color.FgYellow),
	notify.KindInfo:    color.New(color.FgCyan),
}

func printNotification(w io.Writer) notify.Listener {
	return func(n notify.Notification) {
		c, ok := noticeColors[n.Kind]
		if !ok {
			c = color.New(color.Reset)
		}
		c.Fprintf(w, "%-7s %s\n", n.Kind, n.Text)
	}
}

// loginPrompt stands in for navigation to the login page.
type loginPrompt struct {
	w io.Writer
}

func (p loginPrompt) Navigate(path string) {
	fmt.Fprintf(p.w, "Session expired (%s). Run `homelink login` to sign in again.\n", path)
}

func stringSliceToAnySlice(strs []string) []any {
	anys := make([]any, len(strs))
	for i, s := range strs {
		anys[i] = s
	}
	return anys
}
