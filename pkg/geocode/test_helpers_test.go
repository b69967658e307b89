package geocode

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// newTestLimiter creates a rate limiter that effectively does not limit for tests.
func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// newRewriteClient creates an HTTP client that rewrites requests to a test server URL.
// All requests matching the target prefix are redirected to the test server.
func newRewriteClient(testServerURL, targetPrefix string) *http.Client {
	return &http.Client{
		Transport: &rewriteTransport{
			base:         http.DefaultTransport,
			testServer:   testServerURL,
			targetPrefix: targetPrefix,
		},
	}
}

type rewriteTransport struct {
	base         http.RoundTripper
	testServer   string
	targetPrefix string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	origURL := req.URL.String()
	if strings.HasPrefix(origURL, t.targetPrefix) {
		suffix := origURL[len(t.targetPrefix):]
		newURL := t.testServer + suffix
		newReq := req.Clone(req.Context())
		parsed, err := req.URL.Parse(newURL)
		if err != nil {
			return nil, err
		}
		newReq.URL = parsed
		newReq.Host = parsed.Host
		return t.base.RoundTrip(newReq)
	}
	return t.base.RoundTrip(req)
}

// zipBytes builds an in-memory archive holding a single file.
func zipBytes(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// fakeClient records the batches it receives.
type fakeClient struct {
	mu        sync.Mutex
	centroids map[string]Centroid
	err       error
	calls     [][]string
}

func (f *fakeClient) Lookup(_ context.Context, _ string, codes []string) (map[string]Centroid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), codes...))
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]Centroid)
	for _, c := range codes {
		if cen, ok := f.centroids[c]; ok {
			out[c] = cen
		}
	}
	return out, nil
}

// memCache is an in-memory CentroidCache.
type memCache struct {
	data   map[string]Centroid
	getErr error
	putErr error
	puts   int
}

func (m *memCache) GetCentroids(_ context.Context, _ string, codes []string) (map[string]Centroid, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := make(map[string]Centroid)
	for _, c := range codes {
		if cen, ok := m.data[c]; ok {
			out[c] = cen
		}
	}
	return out, nil
}

func (m *memCache) PutCentroids(_ context.Context, _ string, centroids map[string]Centroid) error {
	m.puts++
	if m.putErr != nil {
		return m.putErr
	}
	if m.data == nil {
		m.data = make(map[string]Centroid)
	}
	for k, v := range centroids {
		m.data[k] = v
	}
	return nil
}
