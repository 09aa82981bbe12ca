package report_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
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
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/printq/internal/report/app"
	"github.com/aussiebroadwan/printq/internal/report/engine/enginetest"
	"github.com/aussiebroadwan/printq/internal/report/store/drivers/memory"
	"github.com/aussiebroadwan/printq/pkg/jwtx"
	"github.com/aussiebroadwan/printq/pkg/reportsdk"
)

/*
 * Helpers for end-to-end tests of the edge and worker. Both run in-process
 * against a real Redis container, a shared fs storage root and a fake
 * browser, and are driven over HTTP through pkg/reportsdk.
 */

const (
	testIssuer   = "https://issuer.e2e/"
	testAudience = "printq"
	linkSecret   = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// stack is one running edge and worker.
type stack struct {
	BaseURL string
	Audit   *memory.AuditLog
	Engine  *enginetest.Engine

	signer jwtx.Signer
}

// startRedis runs a throwaway redis and returns its URL.
func startRedis(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping end-to-end test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

// startIssuer publishes one RS256 key the edge will trust.
func startIssuer(t *testing.T) (jwtx.Signer, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	signer, err := jwtx.NewSignerRS256("e2e-1", pemKey)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwtx.JWKS{Keys: []jwtx.JWK{signer.PublicJWK()}})
	}))
	t.Cleanup(srv.Close)
	return signer, srv.URL + "/keys"
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

// startStack wires an edge and a worker the way cmd/edge and cmd/worker
// do, from the environment, and stops both when the test ends.
func startStack(t *testing.T, env map[string]string) *stack {
	t.Helper()
	redisURL := startRedis(t)
	signer, jwksURL := startIssuer(t)

	scripts := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(scripts, "invoice.html"), []byte("<h1>{{.title}}</h1>"), 0o644))
	issuers := filepath.Join(t.TempDir(), "issuers.yaml")
	require.NoError(t, os.WriteFile(issuers, []byte(fmt.Sprintf(
		"issuers:\n  - issuer: %s\n    audience: %s\n    jwks_url: %s\n", testIssuer, testAudience, jwksURL,
	)), 0o600))

	port := freePort(t)
	defaults := map[string]string{
		"ENV":                     "test",
		"LOG_LEVEL":               "error",
		"SCRIPTS_DIR":             scripts,
		"STORAGE_DRIVER":          "fs",
		"STORAGE_ROOT":            t.TempDir(),
		"QUEUE_DRIVER":            "redis",
		"REDIS_URL":               redisURL,
		"SB_QUEUE":                "e2e-" + t.Name(),
		"REPORT_DATA_DRIVER":      "sqlite",
		"PORT":                    fmt.Sprint(port),
		"HMAC_SECRET_B64":         linkSecret,
		"AUTH_ISSUERS_FILE":       issuers,
		"RECEIVE_WAIT":            "200ms",
		"HEALTH_PORT":             fmt.Sprint(freePort(t)),
		"RATELIMIT_EDGE_REQUESTS": "1000",
		"RATELIMIT_EDGE_BURST":    "1000",
	}
	for k, v := range env {
		defaults[k] = v
	}
	for k, v := range defaults {
		t.Setenv(k, v)
	}

	edgeCfg, err := app.LoadEdgeConfig()
	require.NoError(t, err)
	edge, err := app.NewEdge(edgeCfg, app.WithLogger(discard))
	require.NoError(t, err)

	s := &stack{
		BaseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		Audit:   memory.NewAuditLog(),
		Engine:  &enginetest.Engine{},
		signer:  signer,
	}
	worker, err := app.NewWorker(app.LoadWorkerConfig(),
		app.WithEngine(s.Engine),
		app.WithAuditLog(s.Audit),
		app.WithLogger(discard),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	edgeDone := make(chan error, 1)
	workerDone := make(chan error, 1)
	go func() { edgeDone <- edge.Serve(ctx) }()
	go func() { workerDone <- worker.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-edgeDone)
		require.NoError(t, <-workerDone)
	})

	anon := reportsdk.NewClient(s.BaseURL, nil)
	require.Eventually(t, func() bool {
		_, err := anon.GetLiveness(context.Background())
		return err == nil
	}, 10*time.Second, 50*time.Millisecond, "edge did not come up")

	return s
}

// token mints an access token for sub.
func (s *stack) token(t *testing.T, sub string) string {
	t.Helper()
	tok, err := s.signer.Sign(jwtx.NewClaims(sub, testIssuer, []string{testAudience}, time.Hour, time.Now()))
	require.NoError(t, err)
	return tok
}

// client returns an SDK client authenticated as sub.
func (s *stack) client(t *testing.T, sub string) *reportsdk.Client {
	t.Helper()
	return reportsdk.NewClient(s.BaseURL, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: s.token(t, sub),
		TokenType:   "Bearer",
	}))
}

// assertHealthy verifies a health check response is OK.
func assertHealthy(t *testing.T, health *reportsdk.HealthResponse, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, health)
	require.Equal(t, "ok", health.Status)
}
