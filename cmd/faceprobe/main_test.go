package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anarcoiris/FaceGUI/internal/usecase"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("FACE_KEY", "")
	t.Setenv("FACE_PROBE_TEST_URL", "")
	t.Setenv("FACE_PROBE_FALLBACK_URL", "")
	t.Setenv("LOG_LEVEL", "error")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newFaceServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/detect"):
			if r.Header.Get("Content-Type") == "application/octet-stream" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"code":"InvalidImage","message":"Decoding error"}}`))
				return
			}
			_, _ = w.Write([]byte(`[{"faceId":"f1","faceRectangle":{"top":1,"left":2,"width":3,"height":4}}]`))
		case strings.HasSuffix(r.URL.Path, "/largepersongroups"):
			_, _ = w.Write([]byte(`[{"largePersonGroupId":"g1","name":"first"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProbeCommandPrintsReport(t *testing.T) {
	srv := newFaceServer(t)

	out, err := run(t, "probe", "--endpoint", srv.URL, "--key", "k", "--fallback-url", "https://img.example.com/face.jpg")
	require.NoError(t, err)

	var report usecase.CapabilityReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.True(t, report.DetectBasic)
	require.Equal(t, usecase.CapabilitySupported, report.DetectAttributes)
	require.True(t, report.LargePersonGroup)
}

func TestProbeCommandSucceedsWhenUnsupported(t *testing.T) {
	srv := newFaceServer(t)

	out, err := run(t, "probe", "--endpoint", srv.URL, "--key", "k")
	require.NoError(t, err)
	require.Contains(t, out, `"detect_basic": false`)
	require.Contains(t, out, "InvalidImage")
}

func TestDetectCommand(t *testing.T) {
	srv := newFaceServer(t)

	out, err := run(t, "detect", "--endpoint", srv.URL, "--key", "k", "--url", "https://img.example.com/face.jpg")
	require.NoError(t, err)
	require.Contains(t, out, `"faceId": "f1"`)

	_, err = run(t, "detect", "--endpoint", srv.URL, "--key", "k")
	require.Error(t, err)
}

func TestGroupsListCommand(t *testing.T) {
	srv := newFaceServer(t)

	out, err := run(t, "groups", "list", "--endpoint", srv.URL, "--key", "k")
	require.NoError(t, err)
	require.Contains(t, out, `"largePersonGroupId": "g1"`)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	out, err := run(t, "token", "operator-1")
	require.NoError(t, err)
	require.Contains(t, out, `"token":`)
}
