package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/mailhook/internal/changestream"
	"github.com/shaharia-lab/mailhook/internal/config"
	"github.com/shaharia-lab/mailhook/internal/notification"
)

const insertEventFile = "../internal/changestream/testdata/insert_event.json"

func sandboxConfig() *config.AppConfig {
	return &config.AppConfig{
		Variant:         "raw",
		Provider:        "sandbox",
		Charset:         "UTF-8",
		Sender:          "Sender Name <sender@example.com>",
		SandboxVerified: []string{"sender@example.com"},
		LogLevel:        "error",
		LogFormat:       "json",
		SMTPPort:        587,
		Port:            8990,
	}
}

func TestNewRuntime_Sandbox(t *testing.T) {
	rt, err := newRuntime(context.Background(), sandboxConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.shutdown(context.Background()) })
	require.NotNil(t, rt.sandbox)

	event, err := changestream.Decode([]byte(`{"Records":[{"dynamodb":{"NewImage":{
		"Name":{"S":"test"},"Email":{"S":"test@gmail.com"}}}}]}`))
	require.NoError(t, err)

	resp, err := rt.lambdaHandler()(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 1, rt.sandbox.SendStatistics().DeliveryAttempts)
}

func TestNewRuntime_NoopSkipsProvider(t *testing.T) {
	cfg := sandboxConfig()
	cfg.Variant = "noop"
	cfg.Provider = "ses"
	cfg.Sender = ""

	rt, err := newRuntime(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.shutdown(context.Background()) })
	assert.Nil(t, rt.sandbox)

	resp, err := rt.handler.Handle(context.Background(), events.DynamoDBEvent{})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestNewRuntime_InvalidConfig(t *testing.T) {
	cfg := sandboxConfig()
	cfg.Variant = "bogus"

	_, err := newRuntime(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HANDLER_VARIANT")
}

func TestNewRuntime_MissingTemplatesFile(t *testing.T) {
	cfg := sandboxConfig()
	cfg.TemplatesFile = "testdata/does-not-exist.yaml"

	_, err := newRuntime(context.Background(), cfg)
	require.Error(t, err)
}

func TestNewRuntime_LogFileSharedByBootAndRuntimeLoggers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mailhook.log")
	cfg := sandboxConfig()
	cfg.LogLevel = "info"
	cfg.LogFile = path
	cfg.OTelEnabled = true
	cfg.OTelExporter = "none"
	cfg.OTelSamplingRate = 1.0

	rt, err := newRuntime(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, rt.shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var msgs []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec), line)
		msgs = append(msgs, rec["msg"].(string))
	}
	assert.Contains(t, msgs, "OpenTelemetry initialized")
	assert.Contains(t, msgs, "mailhook ready")

	backups, err := filepath.Glob(filepath.Join(filepath.Dir(path), "mailhook-*.log*"))
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func runCmd(t *testing.T, cfg *config.AppConfig, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(cfg)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestInvokeCmd_File(t *testing.T) {
	out, err := runCmd(t, sandboxConfig(), "", "invoke", "--event", insertEventFile, "--json")
	require.NoError(t, err)

	var resp notification.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 200, resp.StatusCode)

	body, err := resp.DecodeBody()
	require.NoError(t, err)
	assert.Equal(t, notification.MessageSuccess, body.Message)
	assert.NotEmpty(t, body.MessageID)
}

func TestInvokeCmd_UnverifiedSender(t *testing.T) {
	cfg := sandboxConfig()
	cfg.SandboxVerified = nil

	out, err := runCmd(t, cfg, "", "invoke", "--event", insertEventFile, "--json")
	require.NoError(t, err)

	var resp notification.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 500, resp.StatusCode)
	assert.JSONEq(t, `{"message":"error"}`, resp.Body)
}

func TestInvokeCmd_StdinMalformed(t *testing.T) {
	out, err := runCmd(t, sandboxConfig(), `{"Records":[]}`, "invoke")
	require.NoError(t, err)
	assert.Contains(t, out, "400")
	assert.Contains(t, out, notification.MessageInvalidEvent)
}

func TestInvokeCmd_VariantOverride(t *testing.T) {
	out, err := runCmd(t, sandboxConfig(), `{}`, "invoke", "--variant", "noop", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"statusCode": 200`)
}

func TestInvokeCmd_BadJSON(t *testing.T) {
	_, err := runCmd(t, sandboxConfig(), `not json`, "invoke")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding change event")
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, sandboxConfig(), "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "mailhook "))
}
