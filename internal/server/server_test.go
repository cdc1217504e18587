package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koustreak/bucketvis/internal/errs"
	"github.com/koustreak/bucketvis/internal/filestore"
	"github.com/koustreak/bucketvis/internal/links"
	"github.com/koustreak/bucketvis/internal/metrics"
	"github.com/koustreak/bucketvis/internal/notify"
	"github.com/koustreak/bucketvis/internal/policy"
	"github.com/koustreak/bucketvis/internal/visibility"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory backend for policies, presigning and listings.
type memStore struct {
	mu         sync.Mutex
	policies   map[string]string
	objects    map[string][]filestore.ObjectInfo
	presignErr error
	pingErr    error
}

func (m *memStore) GetBucketPolicy(_ context.Context, bucket string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.policies[bucket]
	if !ok {
		return "", errs.New(errs.ErrKindNoSuchBucketPolicy, "no policy").WithCode("NoSuchBucketPolicy")
	}
	return raw, nil
}

func (m *memStore) SetBucketPolicy(_ context.Context, bucket, raw string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[bucket] = raw
	return nil
}

func (m *memStore) PresignGetURL(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if m.presignErr != nil {
		return "", m.presignErr
	}
	return fmt.Sprintf("http://minio:9000/%s/%s?X-Amz-Date=20261016T120000Z&X-Amz-Expires=%d", bucket, key, int(ttl.Seconds())), nil
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func (m *memStore) ListObjects(_ context.Context, bucket string, opts filestore.ListOptions) ([]filestore.ObjectInfo, error) {
	var out []filestore.ObjectInfo
	for _, o := range m.objects[bucket] {
		if strings.HasPrefix(o.Key, opts.Prefix) {
			out = append(out, o)
		}
	}
	return out, nil
}

type fixture struct {
	store *memStore
	sink  *notify.Memory
	reg   *prometheus.Registry
	srv   *httptest.Server
}

func newFixture(t *testing.T, resources ...string) *fixture {
	t.Helper()

	doc := policy.Default()
	for _, r := range resources {
		doc = doc.WithResource(r)
	}
	raw, err := doc.JSON()
	require.NoError(t, err)

	store := &memStore{
		policies: map[string]string{"b1": raw},
		objects: map[string][]filestore.ObjectInfo{"b1": {
			{Key: "public/", IsDir: true, Size: -1},
			{Key: "public/img.png", Size: 10},
			{Key: "private.txt", Size: 3},
		}},
	}
	sink := notify.NewMemory(10)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	vis := visibility.New(store, visibility.WithSink(sink), visibility.WithMetrics(m))
	base, err := url.Parse("http://minio:9000")
	require.NoError(t, err)
	ln := links.New(vis, store, base, links.WithTTL(time.Hour), links.WithMetrics(m))

	s := New(Options{
		Visibility: vis,
		Links:      ln,
		Objects:    store,
		Journal:    sink,
		Metrics:    m,
		Gatherer:   reg,
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &fixture{store: store, sink: sink, reg: reg, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path string, header map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") && len(data) > 0 && data[0] == '{' {
		require.NoError(t, json.Unmarshal(data, &body))
	}
	return resp, body
}

func TestVisibilityAndToggle(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/api/v1/buckets/b1/visibility?path=reports/q1.csv", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["isPublicFile"])
	assert.NotEmpty(t, resp.Header.Get(headerRequestID))

	resp, body = f.do(t, http.MethodPut, "/api/v1/buckets/b1/public?path=reports/q1.csv", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["changed"])
	assert.Equal(t, true, body["visibility"].(map[string]any)["isPublicFile"])
	assert.Equal(t, []any{"arn:aws:s3:::b1/reports/q1.csv"}, body["resources"])

	resp, body = f.do(t, http.MethodDelete, "/api/v1/buckets/b1/public?path=reports/q1.csv", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["visibility"].(map[string]any)["isPublicFile"])

	msgs, err := f.sink.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestToggle_DisabledIsConflict(t *testing.T) {
	f := newFixture(t, "arn:aws:s3:::b1/public/*")

	resp, body := f.do(t, http.MethodPut, "/api/v1/buckets/b1/public?path=public/img.png", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "toggle_disabled", body["error"])
}

func TestResources(t *testing.T) {
	f := newFixture(t, "arn:aws:s3:::b1/a/*", "arn:aws:s3:::b1/a/x.txt")

	resp, body := f.do(t, http.MethodGet, "/api/v1/buckets/b1/policy/resources", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["resources"], 2)

	resp, _ = f.do(t, http.MethodDelete, "/api/v1/buckets/b1/policy/resources", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = f.do(t, http.MethodDelete, "/api/v1/buckets/b1/policy/resources?resource="+url.QueryEscape("arn:aws:s3:::b1/a/*"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"arn:aws:s3:::b1/a/x.txt"}, body["resources"])
}

func TestDownload(t *testing.T) {
	f := newFixture(t, "arn:aws:s3:::b1/public/*")

	resp, body := f.do(t, http.MethodGet, "/api/v1/buckets/b1/download?path=public/img.png", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "direct", body["kind"])
	assert.Equal(t, "http://minio:9000/b1/public/img.png", body["url"])

	resp, body = f.do(t, http.MethodGet, "/api/v1/buckets/b1/download?path=private/img.png",
		map[string]string{"Accept-Language": "de-DE"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "presigned", body["kind"])
	assert.Equal(t, "16.10.2026, 13:00 UTC", body["expirationLabel"])

	resp, _ = f.do(t, http.MethodGet, "/api/v1/buckets/b1/download", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	f.store.presignErr = errs.New(errs.ErrKindObjectNotFound, "no such key").WithCode("NoSuchKey")
	resp, body = f.do(t, http.MethodGet, "/api/v1/buckets/b1/download?path=gone.png", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "object_not_found", body["error"])
	assert.Equal(t, "NoSuchKey", body["code"])
}

func TestObjects(t *testing.T) {
	f := newFixture(t, "arn:aws:s3:::b1/public/*")

	resp, body := f.do(t, http.MethodGet, "/api/v1/buckets/b1/objects", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	objects := body["objects"].([]any)
	require.Len(t, objects, 3)

	byKey := map[string]map[string]any{}
	for _, o := range objects {
		entry := o.(map[string]any)
		byKey[entry["key"].(string)] = entry["visibility"].(map[string]any)
	}
	assert.Equal(t, true, byKey["public/"]["isPublicFile"])
	assert.Equal(t, true, byKey["public/img.png"]["isInPublicDirectory"])
	assert.Equal(t, true, byKey["public/img.png"]["toggleDisabled"])
	assert.Equal(t, false, byKey["private.txt"]["isPublicFile"])

	resp, _ = f.do(t, http.MethodGet, "/api/v1/buckets/b1/objects?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNotifications(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPut, "/api/v1/buckets/b1/public?path=a.txt", nil)

	resp, err := http.Get(f.srv.URL + "/api/v1/notifications?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()

	var msgs []notify.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, visibility.OpSetPublic, msgs[0].Operation)
	assert.Equal(t, notify.LevelSuccess, msgs[0].Level)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	f.store.pingErr = errors.New("connection refused")
	resp, _ = f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `bucketvis_http_request_duration_seconds_count{route="/healthz",status="200"} 1`)
}

func TestRequestID_Propagated(t *testing.T) {
	f := newFixture(t)
	const id = "0f8fad5b-d9cb-469f-a165-70867728950e"

	resp, _ := f.do(t, http.MethodGet, "/healthz", map[string]string{headerRequestID: id})
	assert.Equal(t, id, resp.Header.Get(headerRequestID))

	resp, _ = f.do(t, http.MethodGet, "/healthz", map[string]string{headerRequestID: "not-a-uuid"})
	assert.NotEqual(t, "not-a-uuid", resp.Header.Get(headerRequestID))
}

func TestStatusFor(t *testing.T) {
	tests := map[errs.ErrKind]int{
		errs.ErrKindInvalidInput:        http.StatusBadRequest,
		errs.ErrKindNotAuthenticated:    http.StatusUnauthorized,
		errs.ErrKindPermissionDenied:    http.StatusForbidden,
		errs.ErrKindObjectNotFound:      http.StatusNotFound,
		errs.ErrKindPolicyWriteConflict: http.StatusConflict,
		errs.ErrKindToggleDisabled:      http.StatusConflict,
		errs.ErrKindAuthExchange:        http.StatusBadGateway,
		errs.ErrKindTimeout:             http.StatusGatewayTimeout,
		errs.ErrKindUnknown:             http.StatusInternalServerError,
	}
	for kind, want := range tests {
		assert.Equal(t, want, statusFor(kind), kind.String())
	}
}
