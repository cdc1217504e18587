package minio

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koustreak/bucketvis/internal/credcache"
	"github.com/koustreak/bucketvis/internal/errs"
	"github.com/koustreak/bucketvis/internal/filestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu          sync.Mutex
	creds       credcache.Credentials
	subs        []func(credcache.Credentials)
	invalidated int
}

func (f *fakeSource) Get(context.Context) (credcache.Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creds, nil
}

func (f *fakeSource) Subscribe(fn func(credcache.Credentials)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
	return func() {}
}

func (f *fakeSource) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated++
}

func (f *fakeSource) rotate(creds credcache.Credentials) {
	f.mu.Lock()
	f.creds = creds
	subs := append([]func(credcache.Credentials){}, f.subs...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(creds)
	}
}

func creds(key string) credcache.Credentials {
	return credcache.Credentials{
		AccessKeyID:     key,
		SecretAccessKey: "secret",
		SessionToken:    "session",
		ExpiresAt:       time.Now().Add(time.Hour),
	}
}

// s3Stub answers bucket-policy requests for bucket b1 and lists it as the
// only bucket.
type s3Stub struct {
	mu         sync.Mutex
	policy     string
	authHeader []string
	rejectKey  string
}

func (s *s3Stub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auth := r.Header.Get("Authorization")
	s.authHeader = append(s.authHeader, auth)

	if s.rejectKey != "" && strings.Contains(auth, "Credential="+s.rejectKey+"/") {
		writeError(w, http.StatusForbidden, "InvalidAccessKeyId")
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/" {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><ListAllMyBucketsResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/"><Owner><ID>o</ID><DisplayName>o</DisplayName></Owner><Buckets><Bucket><Name>b1</Name><CreationDate>2026-10-16T12:00:00.000Z</CreationDate></Bucket></Buckets></ListAllMyBucketsResult>`)
		return
	}

	if _, ok := r.URL.Query()["policy"]; !ok || strings.Trim(r.URL.Path, "/") != "b1" {
		writeError(w, http.StatusNotImplemented, "NotImplemented")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if s.policy == "" {
			writeError(w, http.StatusNotFound, "NoSuchBucketPolicy")
			return
		}
		_, _ = io.WriteString(w, s.policy)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		s.policy = string(body)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed")
	}
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>`+code+`</Code><Message>`+code+`</Message><BucketName>b1</BucketName></Error>`)
}

func newDriver(t *testing.T, stub *s3Stub, src credcache.Source) *Driver {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	cfg := filestore.DefaultConfig(strings.TrimPrefix(srv.URL, "http://"))
	cfg.Region = "us-east-1"
	d := NewLazy(cfg, src)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDriver_MissingPolicy(t *testing.T) {
	d := newDriver(t, &s3Stub{}, &fakeSource{creds: creds("AK1")})

	_, err := d.GetBucketPolicy(context.Background(), "b1")
	require.Error(t, err)
	assert.True(t, errs.IsNoSuchBucketPolicy(err))
	assert.Equal(t, "NoSuchBucketPolicy", errs.CodeOf(err))
}

func TestDriver_SetThenGetPolicy(t *testing.T) {
	d := newDriver(t, &s3Stub{}, &fakeSource{creds: creds("AK1")})
	doc := `{"Version":"2012-10-17","Statement":[]}`

	require.NoError(t, d.SetBucketPolicy(context.Background(), "b1", doc))
	got, err := d.GetBucketPolicy(context.Background(), "b1")
	require.NoError(t, err)
	assert.JSONEq(t, doc, got)
}

func TestDriver_RefusesEmptyPolicy(t *testing.T) {
	d := newDriver(t, &s3Stub{}, &fakeSource{creds: creds("AK1")})

	err := d.SetBucketPolicy(context.Background(), "b1", "  ")
	assert.True(t, errs.IsInvalidInput(err))
}

func TestDriver_ListBuckets(t *testing.T) {
	d := newDriver(t, &s3Stub{}, &fakeSource{creds: creds("AK1")})

	buckets, err := d.ListBuckets(context.Background())
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, "b1", buckets[0].Name)
	assert.Equal(t, time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC), buckets[0].CreatedAt.UTC())

	require.NoError(t, d.Ping(context.Background()))
}

func TestDriver_RebindsOnRotation(t *testing.T) {
	stub := &s3Stub{policy: `{"Statement":[]}`}
	src := &fakeSource{creds: creds("AK1")}
	d := newDriver(t, stub, src)

	_, err := d.GetBucketPolicy(context.Background(), "b1")
	require.NoError(t, err)

	src.rotate(creds("AK2"))
	_, err = d.GetBucketPolicy(context.Background(), "b1")
	require.NoError(t, err)

	stub.mu.Lock()
	defer stub.mu.Unlock()
	require.Len(t, stub.authHeader, 2)
	assert.Contains(t, stub.authHeader[0], "Credential=AK1/")
	assert.Contains(t, stub.authHeader[1], "Credential=AK2/")
}

func TestDriver_InvalidatesRejectedCredentials(t *testing.T) {
	stub := &s3Stub{rejectKey: "AK1"}
	src := &fakeSource{creds: creds("AK1")}
	d := newDriver(t, stub, src)

	_, err := d.GetBucketPolicy(context.Background(), "b1")
	require.Error(t, err)
	assert.True(t, errs.IsPermissionDenied(err))
	assert.Equal(t, 1, src.invalidated)
}
