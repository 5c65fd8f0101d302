package zipdeploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sethvargo/go-retry"

	"github.com/OfficeDev/teams-toolkit-sub012/deployerr"
)

const maxErrorBody = 4 << 10

// Upload posts payload to endpoint and returns the status URL from the
// Location header. Only 5xx responses are retried; 4xx and transport
// failures end the upload immediately.
func (c *Client) Upload(ctx context.Context, endpoint string, payload Payload, auth Auth) (string, error) {
	backoff := retry.WithMaxRetries(uint64(c.opts.UploadAttempts-1), retry.NewConstant(c.opts.UploadRetryDelay))

	var (
		location string
		attempt  int
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		loc, err := c.uploadOnce(ctx, endpoint, payload, auth)
		if err == nil {
			location = loc
			return nil
		}

		var apiErr *deployerr.ExternalAPICallError
		if errors.As(err, &apiErr) && apiErr.Remote() {
			c.logger.Warn().
				Int("attempt", attempt).
				Int("status", apiErr.StatusCode).
				Str("endpoint", endpoint).
				Msg("Zip deploy upload failed on the remote side, retrying")
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return "", err
	}

	c.logger.Info().
		Str("endpoint", endpoint).
		Str("location", location).
		Int("attempts", attempt).
		Str("auth", auth.Scheme()).
		Msg("Zip deploy accepted")

	return location, nil
}

func (c *Client) uploadOnce(ctx context.Context, endpoint string, payload Payload, auth Auth) (string, error) {
	if c.opts.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.UploadTimeout)
		defer cancel()
	}

	body, err := payload.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer body.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.ContentLength = payload.Len()
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Cache-Control", "no-cache")
	auth.apply(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &deployerr.ExternalAPICallError{Op: "zip deploy", Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted {
		io.Copy(io.Discard, resp.Body)
		return resolveLocation(endpoint, resp.Header.Get("Location")), nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return "", &deployerr.ExternalAPICallError{
		Op:         "zip deploy",
		Endpoint:   endpoint,
		StatusCode: resp.StatusCode,
		Body:       string(msg),
	}
}

// resolveLocation makes a relative Location header absolute against the
// upload endpoint.
func resolveLocation(endpoint, location string) string {
	if location == "" {
		return ""
	}
	base, err := url.Parse(endpoint)
	if err != nil {
		return location
	}
	ref, err := url.Parse(location)
	if err != nil {
		return location
	}
	return base.ResolveReference(ref).String()
}
