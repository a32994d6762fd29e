package server_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/mailhook/internal/notification"
	"github.com/shaharia-lab/mailhook/internal/provider/sandbox"
	"github.com/shaharia-lab/mailhook/internal/server"
)

const insertEvent = `{"Records":[{"eventName":"INSERT","dynamodb":{"NewImage":{
	"Name":{"S":"test"},"Email":{"S":"test@gmail.com"}}}}]}`

func newTestServer(t *testing.T, verified string, opts ...server.Option) (*httptest.Server, *sandbox.Provider) {
	t.Helper()
	sb := sandbox.New(sandbox.WithVerifiedIdentities(verified))
	h, err := notification.NewRawSender(sb, notification.Settings{
		Sender:  "Sender Name <sender@example.com>",
		Charset: "UTF-8",
	})
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	opts = append(opts, server.WithSandbox(sb))
	srv := httptest.NewServer(server.New(h, 0, logger, opts...).Handler())
	t.Cleanup(srv.Close)
	return srv, sb
}

func post(t *testing.T, url, body string) (*http.Response, notification.Response) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out notification.Response
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, "sender@example.com")

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInvoke_Success(t *testing.T) {
	srv, sb := newTestServer(t, "sender@example.com")

	resp, out := post(t, srv.URL+"/invoke", insertEvent)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, http.StatusOK, out.StatusCode)

	body, err := out.DecodeBody()
	require.NoError(t, err)
	assert.Equal(t, "success", body.Message)
	assert.NotEmpty(t, body.MessageID)
	assert.Equal(t, 1, sb.SendStatistics().DeliveryAttempts)
}

func TestInvoke_UnverifiedSender(t *testing.T) {
	srv, sb := newTestServer(t, "sender@unverifiedemail.com")

	resp, out := post(t, srv.URL+"/invoke", insertEvent)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"message":"error"}`, out.Body)
	assert.Equal(t, 0, sb.SendStatistics().DeliveryAttempts)
}

func TestInvoke_MalformedEvent(t *testing.T) {
	srv, _ := newTestServer(t, "sender@example.com")

	resp, out := post(t, srv.URL+"/invoke", `{"Records":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"message":"invalid event"}`, out.Body)
}

func TestInvoke_InvalidJSON(t *testing.T) {
	srv, _ := newTestServer(t, "sender@example.com")

	resp, err := http.Post(srv.URL+"/invoke", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInvoke_BodyErrors(t *testing.T) {
	sb := sandbox.New(sandbox.WithVerifiedIdentities("sender@example.com"))
	h, err := notification.NewRawSender(sb, notification.Settings{Sender: "Sender Name <sender@example.com>"})
	require.NoError(t, err)
	handler := server.New(h, 0, slog.New(slog.DiscardHandler)).Handler()

	tests := []struct {
		name   string
		body   io.Reader
		status int
	}{
		{"oversized body", strings.NewReader(strings.Repeat("a", 1<<20+1)), http.StatusRequestEntityTooLarge},
		{"read failure", iotest.ErrReader(errors.New("connection reset")), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoke", tt.body))
			assert.Equal(t, tt.status, rec.Code)
			assert.Zero(t, sb.SendStatistics().DeliveryAttempts)
		})
	}
}

func TestSandboxStatistics(t *testing.T) {
	srv, _ := newTestServer(t, "sender@example.com")
	post(t, srv.URL+"/invoke", insertEvent)

	resp, err := http.Get(srv.URL + "/sandbox/statistics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats sandbox.Statistics
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.DeliveryAttempts)
}

func TestMetrics(t *testing.T) {
	t.Run("not mounted without registry", func(t *testing.T) {
		srv, _ := newTestServer(t, "sender@example.com")
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.NotEqual(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("served from registry", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		c := prometheus.NewCounter(prometheus.CounterOpts{Name: "mailhook_test_total"})
		reg.MustRegister(c)
		c.Inc()

		srv, _ := newTestServer(t, "sender@example.com", server.WithMetricsRegistry(reg))
		resp, err := http.Get(srv.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(raw), "mailhook_test_total 1")
	})
}
