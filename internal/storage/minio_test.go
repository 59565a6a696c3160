package storage

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumind/internal/config"
)

// s3Server 只支持单个存储桶的 S3 兼容 HTTP 服务
type s3Server struct {
	mu        sync.Mutex
	buckets   map[string]bool
	objects   map[string][]byte
	types     map[string]string
	lifecycle string
	requests  int
}

func newS3Server(t *testing.T) (*s3Server, *httptest.Server) {
	t.Helper()
	s := &s3Server{buckets: map[string]bool{}, objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv
}

// readPayload 解码 aws-chunked 流式签名的请求体
func readPayload(r *http.Request) ([]byte, error) {
	if !strings.HasPrefix(r.Header.Get("X-Amz-Content-Sha256"), "STREAMING-") {
		return io.ReadAll(r.Body)
	}
	br := bufio.NewReader(r.Body)
	var out bytes.Buffer
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		sizeHex, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		n, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, br, n); err != nil {
			return nil, err
		}
		if _, err := br.Discard(2); err != nil {
			return nil, err
		}
	}
}

func (s *s3Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++

	bucket, object, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	key := bucket + "/" + object

	switch {
	case object == "" && r.Method == http.MethodHead:
		if !s.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case object == "" && r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		if _, ok := r.URL.Query()["lifecycle"]; ok {
			s.lifecycle = string(body)
		} else {
			s.buckets[bucket] = true
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		data, err := readPayload(r)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.objects[key] = data
		s.types[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag-`+strconv.Itoa(len(data))+`"`)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet || r.Method == http.MethodHead:
		data, ok := s.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method == http.MethodGet {
				io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message><Key>`+object+`</Key></Error>`)
			}
			return
		}
		w.Header().Set("ETag", `"etag-`+strconv.Itoa(len(data))+`"`)
		w.Header().Set("Content-Type", s.types[key])
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("Last-Modified", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write(data)
		}
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func newTestMinIO(t *testing.T, expireDays int) (*MinIO, *s3Server) {
	t.Helper()
	fake, srv := newS3Server(t)
	m, err := NewMinIO(context.Background(), &config.MinIOConfig{
		Endpoint:         strings.TrimPrefix(srv.URL, "http://"),
		AccessKeyID:      "minio",
		SecretAccessKey:  "minio-secret",
		BucketName:       "resumes",
		Location:         "us-east-1",
		ObjectExpireDays: expireDays,
	})
	require.NoError(t, err)
	return m, fake
}

func TestMinIOCreatesBucketAndLifecycle(t *testing.T) {
	_, fake := newTestMinIO(t, 7)
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.True(t, fake.buckets["resumes"])
	assert.Contains(t, fake.lifecycle, "expire-resume-objects")
	assert.Contains(t, fake.lifecycle, "<Days>7</Days>")
}

func TestMinIOUploadAndOpen(t *testing.T) {
	m, fake := newTestMinIO(t, 0)
	ctx := context.Background()
	data := []byte("%PDF-1.4 resume bytes")

	name, err := m.Upload(ctx, "resumes/rid-1/cv.pdf", bytes.NewReader(data), int64(len(data)), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "resumes/rid-1/cv.pdf", name)

	fake.mu.Lock()
	assert.Equal(t, data, fake.objects["resumes/resumes/rid-1/cv.pdf"])
	assert.Empty(t, fake.lifecycle)
	fake.mu.Unlock()

	rc, info, err := m.Open(ctx, name)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, name, info.Path)
	assert.Equal(t, int64(len(data)), info.Size)
	assert.Equal(t, "application/pdf", info.ContentType)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), info.LastModified.UTC())

	got, err := m.Read(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestMinIOMissingObject(t *testing.T) {
	m, _ := newTestMinIO(t, 0)
	_, err := m.Read(context.Background(), "resumes/none/cv.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestMinIORejectsInvalidPathWithoutRequest(t *testing.T) {
	m, fake := newTestMinIO(t, 0)
	fake.mu.Lock()
	before := fake.requests
	fake.mu.Unlock()

	_, err := m.Upload(context.Background(), "resumes/rid-1/", strings.NewReader("x"), 1, "text/plain")
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, _, err = m.Open(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidPath)

	fake.mu.Lock()
	assert.Equal(t, before, fake.requests)
	fake.mu.Unlock()
}

func TestNewMinIORequiresBucket(t *testing.T) {
	_, err := NewMinIO(context.Background(), nil)
	assert.Error(t, err)
	_, err = NewMinIO(context.Background(), &config.MinIOConfig{Endpoint: "127.0.0.1:9000"})
	assert.Error(t, err)
}
