package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/floodgatehq/floodgate/internal/auth"
	"github.com/floodgatehq/floodgate/internal/notify"
	"github.com/floodgatehq/floodgate/internal/observability"
	"github.com/floodgatehq/floodgate/internal/provider"
	"github.com/floodgatehq/floodgate/internal/provider/localfs"
	"github.com/floodgatehq/floodgate/internal/ratelimit"
	"github.com/floodgatehq/floodgate/internal/transfer"
	"github.com/gofiber/fiber/v2"
	"github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(ctx context.Context, event notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) Events() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Event, len(r.events))
	copy(out, r.events)
	return out
}

type testGateway struct {
	app      *fiber.App
	notifier *recordingNotifier
}

func newTestGateway(t *testing.T, limiter *ratelimit.Limiter) *testGateway {
	t.Helper()

	base := afero.NewMemMapFs()
	require.NoError(t, base.MkdirAll("/proj", 0o755))
	require.NoError(t, base.MkdirAll("/proj2", 0o755))

	registry := provider.NewRegistry()
	registry.Register(localfs.ProviderName, localfs.NewFactory(base))

	handler := auth.NewStaticHandler("", []auth.StaticGrant{
		{Resource: "proj", Provider: "localfs", Settings: map[string]any{"root": "/proj"}},
		{Resource: "proj2", Provider: "localfs", Settings: map[string]any{"root": "/proj2"}},
	})

	if limiter == nil {
		limiter = ratelimit.NewLimiter(nil, 0, 0, false)
	}

	notifier := &recordingNotifier{}
	server := NewServer(
		handler,
		registry,
		limiter,
		notifier,
		observability.New(),
		&transfer.Engine{SpoolDir: t.TempDir()},
		slog.Default(),
	)

	app := fiber.New(fiber.Config{
		StreamRequestBody:     true,
		DisableStartupMessage: true,
	})
	server.SetupRoutes(app)
	return &testGateway{app: app, notifier: notifier}
}

func (g *testGateway) do(t *testing.T, method, target string, body io.Reader, header map[string]string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := g.app.Test(req, int(10*time.Second/time.Millisecond))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return decoded
}

func attributes(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "body has no data object: %v", body)
	attrs, ok := data["attributes"].(map[string]any)
	require.True(t, ok)
	return attrs
}

func TestUploadThenDownload(t *testing.T) {
	g := newTestGateway(t, nil)

	resp := g.do(t, http.MethodPut, "/v1/resources/proj/providers/localfs/?kind=file&name=a.txt",
		strings.NewReader("hello"), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	attrs := attributes(t, body)
	assert.Equal(t, float64(5), attrs["size"])

	want := sha256.Sum256([]byte("hello"))
	hashes := attrs["hashes"].(map[string]any)
	assert.Equal(t, hex.EncodeToString(want[:]), hashes["sha256"])

	dl := g.do(t, http.MethodGet, "/v1/resources/proj/providers/localfs/a.txt", nil, nil)
	require.Equal(t, http.StatusOK, dl.StatusCode)
	defer dl.Body.Close()
	content, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
	assert.Contains(t, dl.Header.Get("Content-Disposition"), `filename=a.txt`)
}

func TestUploadIdempotentContent(t *testing.T) {
	g := newTestGateway(t, nil)

	first := g.do(t, http.MethodPut, "/v1/resources/proj/providers/localfs/?kind=file&name=a.txt",
		strings.NewReader("same"), nil)
	require.Equal(t, http.StatusCreated, first.StatusCode)
	firstHashes := attributes(t, decodeBody(t, first))["hashes"].(map[string]any)

	second := g.do(t, http.MethodPut, "/v1/resources/proj/providers/localfs/a.txt",
		strings.NewReader("same"), nil)
	require.Equal(t, http.StatusOK, second.StatusCode)
	secondHashes := attributes(t, decodeBody(t, second))["hashes"].(map[string]any)

	assert.Equal(t, firstHashes["sha256"], secondHashes["sha256"])
}

func TestDisplayNameOverridesDisposition(t *testing.T) {
	g := newTestGateway(t, nil)
	g.do(t, http.MethodPut, "/v1/resources/proj/providers/localfs/?kind=file&name=a.txt",
		strings.NewReader("x"), nil)

	dl := g.do(t, http.MethodGet, "/v1/resources/proj/providers/localfs/a.txt?displayName=renamed.txt", nil, nil)
	defer dl.Body.Close()
	assert.Contains(t, dl.Header.Get("Content-Disposition"), "renamed.txt")
}

func TestTrailingSlashMismatch(t *testing.T) {
	g := newTestGateway(t, nil)
	g.do(t, http.MethodPut, "/v1/resources/proj/providers/localfs/?kind=file&name=a.txt",
		strings.NewReader("x"), nil)

	resp := g.do(t, http.MethodGet, "/v1/resources/proj/providers/localfs/a.txt/", nil, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestFolderListingAndMetaPrecedence(t *testing.T) {
	g := newTestGateway(t, nil)
	g.do(t, http.MethodPut, "/v1/resources/proj/providers/localfs/?kind=file&name=a.txt",
		strings.NewReader("x"), nil)

	t.Run("folder listing", func(t *testing.T) {
		resp := g.do(t, http.MethodGet, "/v1/resources/proj/providers/localfs/", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		defer resp.Body.Close()
		var listing struct {
			Data []map[string]any `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
		require.Len(t, listing.Data, 1)
		assert.Equal(t, "files", listing.Data[0]["type"])
	})

	t.Run("revisions listing", func(t *testing.T) {
		resp := g.do(t, http.MethodGet, "/v1/resources/proj/providers/localfs/a.txt?revisions=", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		defer resp.Body.Close()
		var listing struct {
			Data []map[string]any `json:"data"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
		require.Len(t, listing.Data, 1)
		assert.Equal(t, "revisions", listing.Data[0]["type"])
	})

	t.Run("meta wins over revisions", func(t *testing.T) {
		resp := g.do(t, http.MethodGet, "/v1/resources/proj/providers/localfs/a.txt?meta=&revisions=", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decodeBody(t, resp)
		data := body["data"].(map[string]any)
		assert.Equal(t, "files", data["type"])
	})
}

func TestFolderZip(t *testing.T) {
	g := newTestGateway(t, nil)
	g.do(t, http.MethodPut, "/v1/resources/proj/providers/localfs/?kind=folder&name=folder", nil, nil)
	g.do(t, http.MethodPut, "/v1/resources/proj/providers/localfs/folder/?kind=file&name=a.txt",
		strings.NewReader("x"), nil)
	g.do(t, http.MethodPut, "/v1/resources/proj/providers/localfs/folder/?kind=folder&name=sub", nil, nil)
	g.do(t, http.MethodPut, "/v1/resources/proj/providers/localfs/folder/sub/?kind=file&name=b.txt",
		strings.NewReader("y"), nil)

	resp := g.do(t, http.MethodGet, "/v1/resources/proj/providers/localfs/folder/?zip=", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))

	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "a.txt", zr.File[0].Name)
	assert.Equal(t, "sub/b.txt", zr.File[1].Name)

	for i, want := range []string{"x", "y"} {
		rc, err := zr.File[i].Open()
		require.NoError(t, err)
		got, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		assert.Equal(t, want, string(got))
	}
}

func TestCreateFolder(t *testing.T) {
	g := newTestGateway(t, nil)

	resp := g.do(t, http.MethodPut, "/v1/resources/proj/providers/localfs/?kind=folder&name=photos", nil, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	conflict := g.do(t, http.MethodPut, "/v1/resources/proj/providers/localfs/?kind=folder&name=photos", nil, nil)
	require.Equal(t, http.StatusConflict, conflict.StatusCode)
	body := decodeBody(t, conflict)
	assert.Equal(t, "NAMING_CONFLICT", body["code"])
	data := body["data"].(map[string]any)
	assert.Equal(t, "photos", data["name"])
}

func TestRootDelete(t *testing.T) {
	g := newTestGateway(t, nil)
	g.do(t, http.MethodPut, "/v1/resources/proj/providers/localfs/?kind=file&name=a.txt",
		strings.NewReader("x"), nil)

	denied := g.do(t, http.MethodDelete, "/v1/resources/proj/providers/localfs/", nil, nil)
	require.Equal(t, http.StatusBadRequest, denied.StatusCode)

	allowed := g.do(t, http.MethodDelete, "/v1/resources/proj/providers/localfs/?confirm_delete=1", nil, nil)
	require.Equal(t, http.StatusNoContent, allowed.StatusCode)

	listing := g.do(t, http.MethodGet, "/v1/resources/proj/providers/localfs/", nil, nil)
	defer listing.Body.Close()
	var decoded struct {
		Data []any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(listing.Body).Decode(&decoded))
	assert.Empty(t, decoded.Data)
}

func TestDeleteEntity(t *testing.T) {
	g := newTestGateway(t, nil)
	g.do(t, http.MethodPut, "/v1/resources/proj/providers/localfs/?kind=file&name=a.txt",
		strings.NewReader("x"), nil)

	resp := g.do(t, http.MethodDelete, "/v1/resources/proj/providers/localfs/a.txt", nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	gone := g.do(t, http.MethodGet, "/v1/resources/proj/providers/localfs/a.txt", nil, nil)
	assert.Equal(t, http.StatusNotFound, gone.StatusCode)
}

func TestRename(t *testing.T) {
	g := newTestGateway(t, nil)
	g.do(t, http.MethodPut, "/v1/resources/proj/providers/localfs/?kind=file&name=old.txt",
		strings.NewReader("x"), nil)

	resp := g.do(t, http.MethodPost, "/v1/resources/proj/providers/localfs/old.txt",
		strings.NewReader(`{"action":"rename","rename":"new.txt"}`),
		map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	attrs := attributes(t, decodeBody(t, resp))
	assert.Equal(t, "new.txt", attrs["name"])

	gone := g.do(t, http.MethodGet, "/v1/resources/proj/providers/localfs/old.txt", nil, nil)
	assert.Equal(t, http.StatusNotFound, gone.StatusCode)
}

func TestCrossResourceCopy(t *testing.T) {
	g := newTestGateway(t, nil)
	g.do(t, http.MethodPut, "/v1/resources/proj/providers/localfs/?kind=file&name=src.txt",
		strings.NewReader("payload"), nil)

	resp := g.do(t, http.MethodPost, "/v1/resources/proj/providers/localfs/src.txt",
		strings.NewReader(`{"action":"copy","resource":"proj2","path":"/"}`),
		map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	srcHashes := attributes(t, decodeBody(t, g.do(t, http.MethodGet,
		"/v1/resources/proj/providers/localfs/src.txt?meta=", nil, nil)))["hashes"].(map[string]any)
	dstHashes := attributes(t, decodeBody(t, g.do(t, http.MethodGet,
		"/v1/resources/proj2/providers/localfs/src.txt?meta=", nil, nil)))["hashes"].(map[string]any)
	assert.Equal(t, srcHashes["sha256"], dstHashes["sha256"])
}

func TestCopyConflictKeep(t *testing.T) {
	g := newTestGateway(t, nil)
	g.do(t, http.MethodPut, "/v1/resources/proj/providers/localfs/?kind=file&name=report.txt",
		strings.NewReader("v3"), nil)
	g.do(t, http.MethodPut, "/v1/resources/proj2/providers/localfs/?kind=file&name=report.txt",
		strings.NewReader("v1"), nil)
	g.do(t, http.MethodPut, "/v1/resources/proj2/providers/localfs/?kind=file&name=report%20(1).txt",
		strings.NewReader("v2"), nil)

	resp := g.do(t, http.MethodPost, "/v1/resources/proj/providers/localfs/report.txt",
		strings.NewReader(`{"action":"copy","resource":"proj2","path":"/","conflict":"keep"}`),
		map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	attrs := attributes(t, decodeBody(t, resp))
	assert.Equal(t, "report (2).txt", attrs["name"])
}

func TestMoveRemovesSource(t *testing.T) {
	g := newTestGateway(t, nil)
	g.do(t, http.MethodPut, "/v1/resources/proj/providers/localfs/?kind=file&name=src.txt",
		strings.NewReader("data"), nil)

	resp := g.do(t, http.MethodPost, "/v1/resources/proj/providers/localfs/src.txt",
		strings.NewReader(`{"action":"move","resource":"proj2","path":"/"}`),
		map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	gone := g.do(t, http.MethodGet, "/v1/resources/proj/providers/localfs/src.txt", nil, nil)
	assert.Equal(t, http.StatusNotFound, gone.StatusCode)

	there := g.do(t, http.MethodGet, "/v1/resources/proj2/providers/localfs/src.txt", nil, nil)
	assert.Equal(t, http.StatusOK, there.StatusCode)
}

func TestMoveConflictWarn(t *testing.T) {
	g := newTestGateway(t, nil)
	g.do(t, http.MethodPut, "/v1/resources/proj/providers/localfs/?kind=file&name=f.txt",
		strings.NewReader("a"), nil)
	g.do(t, http.MethodPut, "/v1/resources/proj2/providers/localfs/?kind=file&name=f.txt",
		strings.NewReader("b"), nil)

	resp := g.do(t, http.MethodPost, "/v1/resources/proj/providers/localfs/f.txt",
		strings.NewReader(`{"action":"move","resource":"proj2","path":"/"}`),
		map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestUnknownResourceAndProvider(t *testing.T) {
	g := newTestGateway(t, nil)

	resp := g.do(t, http.MethodGet, "/v1/resources/nope/providers/localfs/", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = g.do(t, http.MethodGet, "/v1/resources/proj/providers/gdrive/", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	store := ratelimit.NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })
	limiter := ratelimit.NewLimiter(store, 2, time.Minute, true)
	g := newTestGateway(t, limiter)

	header := map[string]string{"Authorization": "Bearer same-token"}
	for i := 0; i < 2; i++ {
		resp := g.do(t, http.MethodGet, "/v1/resources/proj/providers/localfs/", nil, header)
		assert.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i+1)
	}

	denied := g.do(t, http.MethodGet, "/v1/resources/proj/providers/localfs/", nil, header)
	require.Equal(t, http.StatusTooManyRequests, denied.StatusCode)
	assert.Equal(t, "0", denied.Header.Get("X-RateLimit-Remaining"))
	assert.Equal(t, "2", denied.Header.Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, denied.Header.Get("X-RateLimit-Reset"))

	retryAfter, err := strconv.Atoi(denied.Header.Get("Retry-After"))
	require.NoError(t, err)
	assert.Positive(t, retryAfter)
	assert.LessOrEqual(t, retryAfter, 61)

	// A different token still passes.
	other := g.do(t, http.MethodGet, "/v1/resources/proj/providers/localfs/", nil,
		map[string]string{"Authorization": "Bearer other-token"})
	assert.Equal(t, http.StatusOK, other.StatusCode)
}

func TestNotificationsFireOnMutation(t *testing.T) {
	g := newTestGateway(t, nil)

	g.do(t, http.MethodPut, "/v1/resources/proj/providers/localfs/?kind=file&name=a.txt",
		strings.NewReader("x"), nil)
	g.do(t, http.MethodDelete, "/v1/resources/proj/providers/localfs/a.txt", nil, nil)

	events := g.notifier.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "upload", events[0].Action)
	assert.Equal(t, "delete", events[1].Action)
	assert.Equal(t, "proj", events[0].Resource)
}

func TestStatusEndpoint(t *testing.T) {
	g := newTestGateway(t, nil)
	resp := g.do(t, http.MethodGet, "/status", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestHeadFile(t *testing.T) {
	g := newTestGateway(t, nil)
	g.do(t, http.MethodPut, "/v1/resources/proj/providers/localfs/?kind=file&name=a.txt",
		strings.NewReader("hello"), nil)

	resp := g.do(t, http.MethodHead, "/v1/resources/proj/providers/localfs/a.txt", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get("Content-Length"))

	defer resp.Body.Close()
	content, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestRangeDownload(t *testing.T) {
	g := newTestGateway(t, nil)
	g.do(t, http.MethodPut, "/v1/resources/proj/providers/localfs/?kind=file&name=data.bin",
		strings.NewReader("0123456789"), nil)

	resp := g.do(t, http.MethodGet, "/v1/resources/proj/providers/localfs/data.bin", nil,
		map[string]string{"Range": "bytes=2-5"})
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	defer resp.Body.Close()
	content, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "2345", string(content))
}
