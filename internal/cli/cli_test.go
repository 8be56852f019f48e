package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// backend accepts "T1" until the first refresh, then "T2".
func backend(t *testing.T, refreshStatus int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var refreshes atomic.Int32
	var current atomic.Value
	current.Store("T1")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/token/refresh/" {
			refreshes.Add(1)
			if refreshStatus != 0 {
				w.WriteHeader(refreshStatus)
				return
			}
			current.Store("T2")
			_ = json.NewEncoder(w).Encode(map[string]string{"access": "T2"})
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+current.Load().(string) || r.URL.Query().Get("stale") == "1" && refreshes.Load() == 0 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"method": r.Method, "body": string(body)})
	}))
	t.Cleanup(srv.Close)
	return srv, &refreshes
}

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "printdesk.yaml")
	yaml := strings.Join([]string{
		"base_url: " + baseURL,
		"log:",
		"  level: error",
		"store:",
		"  driver: file",
		"  file_path: " + filepath.Join(dir, "creds.json"),
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := Execute(context.Background(), args, &out)
	return out.String(), err
}

func TestTokenLifecycleAndRequest(t *testing.T) {
	srv, refreshes := backend(t, 0)
	cfg := writeConfig(t, srv.URL)

	_, err := run(t, "--config", cfg, "token", "set", "--access", "T1", "--refresh", "R1")
	require.NoError(t, err)

	out, err := run(t, "--config", cfg, "request", "post", "/api/orders/", "--data", `{"copies":2}`)
	require.NoError(t, err)
	require.Contains(t, out, `"method": "POST"`)
	require.Equal(t, int32(0), refreshes.Load())

	out, err = run(t, "--config", cfg, "request", "GET", "/api/orders/?stale=1")
	require.NoError(t, err)
	require.Contains(t, out, `"method": "GET"`)
	require.Equal(t, int32(1), refreshes.Load())

	out, err = run(t, "--config", cfg, "token", "show")
	require.NoError(t, err)
	require.Contains(t, out, "access:  present (opaque)")
	require.Contains(t, out, "refresh: present")

	_, err = run(t, "--config", cfg, "token", "clear")
	require.NoError(t, err)
	out, err = run(t, "--config", cfg, "token", "show")
	require.NoError(t, err)
	require.Contains(t, out, "access:  none")
}

func TestSessionExpiredMessage(t *testing.T) {
	srv, _ := backend(t, http.StatusUnauthorized)
	cfg := writeConfig(t, srv.URL)

	_, err := run(t, "--config", cfg, "token", "set", "--access", "bad", "--refresh", "R1")
	require.NoError(t, err)

	_, err = run(t, "--config", cfg, "request", "GET", "/api/orders/")
	require.EqualError(t, err, "session expired: log in again at /login")
}

func TestRequestRejectsBadInput(t *testing.T) {
	srv, _ := backend(t, 0)
	cfg := writeConfig(t, srv.URL)

	_, err := run(t, "--config", cfg, "request", "POST", "/api/orders/", "--data", "{nope")
	require.Error(t, err)

	_, err = run(t, "--config", cfg, "request", "GET")
	require.Error(t, err)

	_, err = run(t, "--config", cfg, "token", "set")
	require.Error(t, err)
}

func TestDescribeToken(t *testing.T) {
	now := time.Now()
	tok, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"user_id": 7,
		"exp":     now.Add(90 * time.Second).Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	got := describe(tok, now)
	require.Contains(t, got, "subject 7")
	require.Contains(t, got, "expires 1 minute from now")

	require.Contains(t, describe(tok, now.Add(time.Hour)), "ago")
	require.Contains(t, describe(tok, now.Add(time.Hour)), "expired")
	require.Equal(t, "present (opaque)", describe("opaque-token", now))
}

func TestConfigShowAndEnvFile(t *testing.T) {
	srv, _ := backend(t, 0)
	cfg := writeConfig(t, srv.URL)

	envFile := filepath.Join(t.TempDir(), "printdesk.env")
	require.NoError(t, os.WriteFile(envFile, []byte("PRINTDESK_SESSION_LOGIN_URL=/accounts/login/\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("PRINTDESK_SESSION_LOGIN_URL") })

	out, err := run(t, "--config", cfg, "--env-file", envFile, "config", "show")
	require.NoError(t, err)
	require.Contains(t, out, srv.URL)
	require.Contains(t, out, "/accounts/login/")
	require.Contains(t, out, "file")

	_, err = run(t, "--config", cfg, "--env-file", filepath.Join(t.TempDir(), "missing.env"), "config", "show")
	require.Error(t, err)
}
