// Package zipdeploy pushes zip artifacts to an App Service SCM endpoint and
// tracks the resulting asynchronous deployment until it settles.
package zipdeploy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Payload is an artifact that can be streamed more than once.
type Payload interface {
	Open() (io.ReadCloser, error)
	Len() int64
}

// Auth sets the Authorization header of SCM requests. Bearer wins when both
// are set.
type Auth struct {
	BearerToken string
	Username    string
	Password    string
}

// BearerAuth returns Auth using an AAD access token.
func BearerAuth(token string) Auth { return Auth{BearerToken: token} }

// BasicAuth returns Auth using site publishing credentials.
func BasicAuth(username, password string) Auth {
	return Auth{Username: username, Password: password}
}

// Scheme names the scheme in use, for logging.
func (a Auth) Scheme() string {
	if a.BearerToken != "" {
		return "bearer"
	}
	return "basic"
}

func (a Auth) apply(req *http.Request) {
	if a.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+a.BearerToken)
		return
	}
	req.SetBasicAuth(a.Username, a.Password)
}

// Options tune upload and polling.
type Options struct {
	// UploadAttempts is the total number of upload tries.
	UploadAttempts   int
	UploadRetryDelay time.Duration
	// UploadTimeout bounds a single upload attempt.
	UploadTimeout time.Duration
	PollAttempts  int
	PollInterval  time.Duration
}

// DefaultOptions mirrors the production defaults.
func DefaultOptions() Options {
	return Options{
		UploadAttempts:   2,
		UploadRetryDelay: time.Second,
		UploadTimeout:    10 * time.Minute,
		PollAttempts:     120,
		PollInterval:     10 * time.Second,
	}
}

// Client talks to SCM endpoints over an injected HTTP client.
type Client struct {
	http   *http.Client
	opts   Options
	logger zerolog.Logger
	// wait blocks between polls; tests replace it.
	wait func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client. A nil httpClient uses http.DefaultClient.
func NewClient(httpClient *http.Client, opts Options, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if opts.UploadAttempts < 1 {
		opts.UploadAttempts = 1
	}
	if opts.PollAttempts < 1 {
		opts.PollAttempts = 1
	}
	if opts.UploadRetryDelay <= 0 {
		opts.UploadRetryDelay = time.Millisecond
	}
	return &Client{
		http:   httpClient,
		opts:   opts,
		logger: logger,
		wait:   sleep,
	}
}

// Endpoint returns the async zip deploy URL of a site.
func Endpoint(siteName, scmHostSuffix string) string {
	return fmt.Sprintf("https://%s.%s/api/zipdeploy?isAsync=true", siteName, scmHostSuffix)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
