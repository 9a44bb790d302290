package errnorm

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tsarna/homelink/pkg/homelink/credentials"
	"github.com/tsarna/homelink/pkg/homelink/endpoint"
	"github.com/tsarna/homelink/pkg/homelink/notify"
	"go.uber.org/zap"
)

// Navigator moves the application to another route.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Location reports the path of the page currently shown.
type Location interface {
	PagePath() string
}

// Reporter turns normalized errors into notifications and performs the
// reauthentication redirect on 401.
type Reporter struct {
	sink      notify.Sink
	store     credentials.Store
	navigator Navigator
	location  Location
	loginPath string
	logger    *zap.Logger
}

func NewReporter(sink notify.Sink) *Reporter {
	return &Reporter{
		sink:      sink,
		loginPath: endpoint.LoginPath,
		logger:    zap.NewNop(),
	}
}

// WithStore sets where the redirect path is kept across the login flow.
func (r *Reporter) WithStore(store credentials.Store) *Reporter {
	r.store = store
	return r
}

func (r *Reporter) WithNavigator(n Navigator) *Reporter {
	r.navigator = n
	return r
}

func (r *Reporter) WithLocation(l Location) *Reporter {
	r.location = l
	return r
}

func (r *Reporter) WithLoginPath(path string) *Reporter {
	r.loginPath = path
	return r
}

func (r *Reporter) WithLogger(logger *zap.Logger) *Reporter {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Report publishes err. Errors that are not an *Error are reported as
// network errors.
func (r *Reporter) Report(ctx context.Context, err error) {
	if err == nil {
		return
	}

	var nerr *Error
	if !errors.As(err, &nerr) {
		nerr = NetworkError(err)
	}

	switch {
	case nerr.IsNetworkError:
		r.logger.Warn("Network error", zap.Error(nerr.Err))
		r.notify(NetworkErrorMessage)

	case nerr.StatusCode == http.StatusUnauthorized:
		r.reauthenticate(ctx, nerr)

	default:
		if nerr.StatusCode == http.StatusServiceUnavailable {
			r.logger.Error("Service unavailable", zap.Strings("messages", nerr.Messages))
		} else {
			r.logger.Debug("Request failed", zap.Int("status", nerr.StatusCode), zap.Strings("messages", nerr.Messages))
		}
		for _, msg := range nerr.Messages {
			r.notify(msg)
		}
	}
}

func (r *Reporter) reauthenticate(ctx context.Context, nerr *Error) {
	text := strings.Join(nerr.Messages, "; ")
	if text == "" {
		text = statusMessages[http.StatusUnauthorized]
	}
	r.notify(text)

	if r.store != nil {
		redirect := "/"
		if r.location != nil {
			redirect = r.location.PagePath()
		}
		if err := r.store.Set(ctx, credentials.KeyRedirect, redirect); err != nil {
			r.logger.Error("Failed to store redirect path", zap.Error(err))
		}
	}

	if r.navigator != nil {
		r.logger.Info("Credentials expired, redirecting to login", zap.String("path", r.loginPath))
		r.navigator.Navigate(r.loginPath)
	}
}

func (r *Reporter) notify(text string) {
	if r.sink != nil {
		r.sink.AddNotification(notify.KindError, text)
	}
}
