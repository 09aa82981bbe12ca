package app

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/printq/internal/report/engine/enginetest"
	"github.com/aussiebroadwan/printq/internal/report/queue/memq"
	"github.com/aussiebroadwan/printq/internal/report/store/drivers/memory"
	"github.com/aussiebroadwan/printq/pkg/jwtx"
	"github.com/aussiebroadwan/printq/pkg/reportsdk"
)

const (
	defaultTestTimeout = 5 * time.Second
	testIssuer         = "https://issuer.test/"
	testAudience       = "printq"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// testIssuerKeys serves one RS256 key and returns a signer for it.
func testIssuerKeys(t *testing.T) (jwtx.Signer, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	signer, err := jwtx.NewSignerRS256("k1", pemKey)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwtx.JWKS{Keys: []jwtx.JWK{signer.PublicJWK()}})
	}))
	t.Cleanup(srv.Close)
	return signer, srv.URL
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func baseConfig(t *testing.T) Config {
	t.Helper()
	scripts := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(scripts, "t1.html"), []byte("<p>{{.x}}</p>"), 0o644))

	return Config{
		Env:                 "test",
		LogLevel:            "error",
		LogFormat:           "text",
		ShutdownGracePeriod: time.Second,
		ScriptsDir:          scripts,
		StorageDriver:       "fs",
		StorageRoot:         t.TempDir(),
		PayloadContainer:    "pdfpayloads",
		OutputContainer:     "pdfs",
		QueueDriver:         "memory",
		QueueName:           "pdf-jobs",
		DataDriver:          "sqlite",
		FetchConcurrency:    2,
	}
}

// TestEdgeAndWorker submits through the edge's HTTP surface, lets a worker
// render the job from the shared queue and storage, downloads the PDF and
// checks the second submit is a cache hit.
func TestEdgeAndWorker(t *testing.T) {
	t.Setenv("RATELIMIT_EDGE_REQUESTS", "10000")
	t.Setenv("RATELIMIT_EDGE_BURST", "10000")

	signer, jwksURL := testIssuerKeys(t)
	base := baseConfig(t)
	q := memq.New(memq.Config{ReceiveWait: 20 * time.Millisecond})

	edge, err := NewEdge(EdgeConfig{
		Config:      base,
		Port:        freePort(t),
		CacheTTL:    30 * time.Second,
		LinkSecret:  []byte("0123456789abcdef0123456789abcdef"),
		IssuersFile: writeIssuersFile(t, "issuers:\n  - issuer: "+testIssuer+"\n    audience: "+testAudience+"\n    jwks_url: "+jwksURL+"\n"),
		JWKSTTL:     time.Hour,
		JWKSTimeout: defaultTestTimeout,
	}, WithQueue(q), WithLogger(discard))
	require.NoError(t, err)

	srv := httptest.NewServer(edge.Handler())
	defer srv.Close()

	audit := memory.NewAuditLog()
	worker, err := NewWorker(WorkerConfig{
		Config:       base,
		Concurrency:  2,
		MaxDelivery:  3,
		AuditTable:   "PdfLog",
		AuditDriver:  "sqlite",
		AuditDSN:     "unused",
		LockDuration: time.Minute,
		ReapSchedule: "@every 1m",
		ReceiveWait:  20 * time.Millisecond,
		HealthPort:   freePort(t),
	}, WithQueue(q), WithEngine(&enginetest.Engine{}), WithAuditLog(audit), WithLogger(discard))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	workerDone := make(chan error, 1)
	go func() { workerDone <- worker.Serve(ctx) }()

	claims := jwtx.NewClaims("alice", testIssuer, []string{testAudience}, time.Hour, time.Now())
	token, err := signer.Sign(claims)
	require.NoError(t, err)

	submit := func() reportsdk.DispatchResponse {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/generate-pdf/t1", bytes.NewBufferString(`{"x":1}`))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out reportsdk.DispatchResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	first := submit()
	require.Equal(t, reportsdk.StatusQueued, first.Status)

	require.Eventually(t, func() bool {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/pdf/"+first.ID, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && bytes.Equal(body, enginetest.PDF)
	}, defaultTestTimeout, 20*time.Millisecond)

	second := submit()
	require.Equal(t, reportsdk.StatusCached, second.Status)
	require.Equal(t, first.ID, second.ID)
	require.NotNil(t, second.AgeSeconds)

	rec := httptest.NewRecorder()
	worker.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	cancel()
	select {
	case err := <-workerDone:
		require.NoError(t, err)
	case <-time.After(defaultTestTimeout):
		t.Fatal("worker did not shut down")
	}

	records := audit.Records()
	require.Len(t, records, 1)
	require.True(t, records[0].Success)
	require.Equal(t, first.ID, records[0].PayloadID)

	require.NoError(t, edge.Shutdown())
}

func TestNewEdgeRejectsInvalidConfig(t *testing.T) {
	_, err := NewEdge(EdgeConfig{Config: baseConfig(t)})
	require.Error(t, err)
}
