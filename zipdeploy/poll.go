package zipdeploy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/OfficeDev/teams-toolkit-sub012/deployerr"
)

// Poll queries location until the deployment leaves the accepted state.
//
// 202 means still running and is re-polled after the poll interval. 200 and
// 201 end polling; a record with status Failed is reported as an error. Any
// other status or a transport failure ends polling at once. Running out of
// attempts yields a TimeoutError.
func (c *Client) Poll(ctx context.Context, location string, auth Auth) (*DeployResult, error) {
	if location == "" {
		return nil, &deployerr.ExternalAPICallError{Op: "zip deploy status", Err: fmt.Errorf("upload response carried no Location header")}
	}

	for i := 0; i < c.opts.PollAttempts; i++ {
		result, done, err := c.check(ctx, location, auth)
		if err != nil {
			return nil, err
		}
		if done {
			return result, nil
		}

		c.logger.Debug().
			Int("check", i+1).
			Str("location", location).
			Msg("Deployment still in progress")

		if err := c.wait(ctx, c.opts.PollInterval); err != nil {
			return nil, err
		}
	}

	return nil, &deployerr.TimeoutError{
		Op:       "zip deploy status",
		Location: location,
		Attempts: c.opts.PollAttempts,
		Waited:   c.opts.PollInterval * time.Duration(c.opts.PollAttempts),
	}
}

func (c *Client) check(ctx context.Context, location string, auth Auth) (*DeployResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create status request: %w", err)
	}
	auth.apply(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, &deployerr.ExternalAPICallError{Op: "zip deploy status", Endpoint: location, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		io.Copy(io.Discard, resp.Body)
		return nil, false, nil
	case http.StatusOK, http.StatusCreated:
		var result DeployResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil && err != io.EOF {
			return nil, false, &deployerr.ExternalAPICallError{Op: "zip deploy status", Endpoint: location, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode deployment record: %w", err)}
		}
		if result.Status == StatusFailed {
			c.logger.Warn().
				Str("deployment_id", result.ID).
				Str("message", result.Message).
				Msg("Deployment finished with status Failed")
			return nil, false, &deployerr.ExternalAPICallError{
				Op:         "zip deploy",
				Endpoint:   location,
				StatusCode: resp.StatusCode,
				Err:        fmt.Errorf("deployment %s finished with status %s: %s", result.ID, result.Status, result.Message),
			}
		}
		return &result, true, nil
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, false, &deployerr.ExternalAPICallError{
			Op:         "zip deploy status",
			Endpoint:   location,
			StatusCode: resp.StatusCode,
			Body:       string(msg),
		}
	}
}
