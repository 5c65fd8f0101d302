package zipdeploy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OfficeDev/teams-toolkit-sub012/deployerr"
)

type bytesPayload []byte

func (b bytesPayload) Open() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(b)), nil }
func (b bytesPayload) Len() int64 { return int64(len(b)) }

func testClient(srv *httptest.Server) (*Client, *int) {
	c := NewClient(srv.Client(), Options{
		UploadAttempts:   2,
		UploadRetryDelay: time.Millisecond,
		PollAttempts:     3,
		PollInterval:     10 * time.Second,
	}, zerolog.Nop())

	waits := new(int)
	c.wait = func(ctx context.Context, d time.Duration) error {
		*waits++
		return ctx.Err()
	}
	return c, waits
}

func TestUpload(t *testing.T) {
	tests := []struct {
		name         string
		statuses     []int
		wantCalls    int32
		wantErr      bool
		wantUserErr  bool
		wantLocation string
	}{
		{name: "accepted", statuses: []int{http.StatusAccepted}, wantCalls: 1, wantLocation: "/api/deployments/latest"},
		{name: "ok", statuses: []int{http.StatusOK}, wantCalls: 1, wantLocation: "/api/deployments/latest"},
		{name: "server error then accepted", statuses: []int{http.StatusServiceUnavailable, http.StatusAccepted}, wantCalls: 2, wantLocation: "/api/deployments/latest"},
		{name: "server error twice", statuses: []int{http.StatusInternalServerError, http.StatusBadGateway}, wantCalls: 2, wantErr: true},
		{name: "client error is not retried", statuses: []int{http.StatusUnauthorized, http.StatusAccepted}, wantCalls: 1, wantErr: true, wantUserErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&calls, 1)
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "true", r.URL.Query().Get("isAsync"))
				assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
				assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
				assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

				body, _ := io.ReadAll(r.Body)
				assert.Equal(t, "zip-bytes", string(body))

				w.Header().Set("Location", "/api/deployments/latest")
				w.WriteHeader(tt.statuses[n-1])
			}))
			defer srv.Close()

			c, _ := testClient(srv)
			loc, err := c.Upload(context.Background(), srv.URL+"/api/zipdeploy?isAsync=true", bytesPayload("zip-bytes"), BearerAuth("token"))

			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, srv.URL+tt.wantLocation, loc)
				return
			}

			var apiErr *deployerr.ExternalAPICallError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantUserErr, apiErr.UserCaused())
			assert.Empty(t, loc)
		})
	}
}

func TestUploadBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "$site", user)
		assert.Equal(t, "secret", pass)
		w.Header().Set("Location", "/status")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, _ := testClient(srv)
	loc, err := c.Upload(context.Background(), srv.URL, bytesPayload("x"), BasicAuth("$site", "secret"))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/status", loc)
}

func TestUploadTransportErrorIsNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(&http.Client{}, Options{UploadAttempts: 2, UploadRetryDelay: time.Millisecond}, zerolog.Nop())
	_, err := c.Upload(context.Background(), url, bytesPayload("x"), BearerAuth("t"))

	var apiErr *deployerr.ExternalAPICallError
	require.ErrorAs(t, err, &apiErr)
	assert.Zero(t, apiErr.StatusCode)
}

func statusServer(t *testing.T, responses []func(w http.ResponseWriter)) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		responses[n-1](w)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func accepted(w http.ResponseWriter) { w.WriteHeader(http.StatusAccepted) }

func record(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

func TestPollSucceedsAfterAccepted(t *testing.T) {
	srv, calls := statusServer(t, []func(http.ResponseWriter){
		accepted,
		accepted,
		record(http.StatusOK, `{"id":"abc","status":4,"message":"done","complete":true,"active":true,"site_name":"app"}`),
	})

	c, waits := testClient(srv)
	result, err := c.Poll(context.Background(), srv.URL, BearerAuth("t"))
	require.NoError(t, err)
	assert.Equal(t, 2, *waits)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "app", result.SiteName)
	assert.True(t, result.Complete)
}

func TestPollFailedRecord(t *testing.T) {
	srv, _ := statusServer(t, []func(http.ResponseWriter){
		record(http.StatusOK, `{"id":"abc","status":3,"message":"build failed"}`),
	})

	c, waits := testClient(srv)
	_, err := c.Poll(context.Background(), srv.URL, BearerAuth("t"))

	var apiErr *deployerr.ExternalAPICallError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, err.Error(), "build failed")
	assert.Zero(t, *waits)
}

func TestPollUnexpectedStatus(t *testing.T) {
	srv, _ := statusServer(t, []func(http.ResponseWriter){
		record(http.StatusNotFound, `not found`),
	})

	c, _ := testClient(srv)
	_, err := c.Poll(context.Background(), srv.URL, BearerAuth("t"))

	var apiErr *deployerr.ExternalAPICallError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestPollTimeout(t *testing.T) {
	srv, calls := statusServer(t, []func(http.ResponseWriter){accepted, accepted, accepted})

	c, waits := testClient(srv)
	_, err := c.Poll(context.Background(), srv.URL, BearerAuth("t"))

	var timeout *deployerr.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 3, timeout.Attempts)
	assert.Equal(t, 30*time.Second, timeout.Waited)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	assert.Equal(t, 3, *waits)
}

func TestPollCanceledDuringWait(t *testing.T) {
	srv, _ := statusServer(t, []func(http.ResponseWriter){accepted, accepted, accepted})

	c := NewClient(srv.Client(), Options{PollAttempts: 3, PollInterval: time.Hour}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Poll(ctx, srv.URL, BearerAuth("t"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPollWithoutLocation(t *testing.T) {
	c := NewClient(nil, DefaultOptions(), zerolog.Nop())
	_, err := c.Poll(context.Background(), "", BearerAuth("t"))
	assert.Error(t, err)
}

func TestEndpoint(t *testing.T) {
	assert.Equal(t, "https://my-app.scm.azurewebsites.net/api/zipdeploy?isAsync=true", Endpoint("my-app", "scm.azurewebsites.net"))
}

func TestResolveLocation(t *testing.T) {
	endpoint := "https://my-app.scm.azurewebsites.net/api/zipdeploy?isAsync=true"

	assert.Equal(t, "https://my-app.scm.azurewebsites.net/api/deployments/latest", resolveLocation(endpoint, "/api/deployments/latest"))
	assert.Equal(t, "https://other.example.com/status?id=1", resolveLocation(endpoint, "https://other.example.com/status?id=1"))
	assert.Empty(t, resolveLocation(endpoint, ""))
}
