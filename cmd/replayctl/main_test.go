package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sessionkit/replay-client/internal/testutil"
	"github.com/sessionkit/replay-client/pkg/client"
	"github.com/sessionkit/replay-client/pkg/query"
	"github.com/sessionkit/replay-client/pkg/replay"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		redisC.Terminate(ctx)
	}

	return redisClient, cleanup
}

func TestGetEnv(t *testing.T) {
	t.Setenv("REPLAYCTL_TEST_VAR", "set")

	if got := getEnv("REPLAYCTL_TEST_VAR", "fallback"); got != "set" {
		t.Errorf("Expected 'set', got %q", got)
	}
	if got := getEnv("REPLAYCTL_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("Expected 'fallback', got %q", got)
	}
}

func TestBuildApp_Validation(t *testing.T) {
	t.Run("missing_org", func(t *testing.T) {
		flagOrg = ""
		flagProject = "frontend"

		if _, err := buildApp("r-1"); err == nil {
			t.Error("Expected error for missing org")
		}
	})

	t.Run("missing_backend_url", func(t *testing.T) {
		flagOrg = "acme"
		flagProject = "frontend"
		t.Setenv("BACKEND_URL", "")

		if _, err := buildApp("r-1"); err == nil {
			t.Error("Expected error for missing BACKEND_URL")
		}
	})
}

func TestPrintAggregate(t *testing.T) {
	result := replay.Aggregate{
		Status: query.StatusSuccess,
		Record: &replay.Record{
			ID:            "r-1",
			ProjectSlug:   "frontend",
			CountSegments: 3,
			CountErrors:   1,
		},
	}

	if err := printAggregate(result); err != nil {
		t.Errorf("Expected no error for success aggregate, got %v", err)
	}

	result.Status = query.StatusError
	if err := printAggregate(result); err == nil {
		t.Error("Expected error for error aggregate")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	// Creating a client registers every metric family
	_, err := client.New(client.DefaultConfig(redisClient, "http://localhost", ""))
	if err != nil {
		t.Fatalf("Failed to create backend client: %v", err)
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler := promhttp.Handler()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	bodyStr := string(body)

	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}

	if !strings.Contains(bodyStr, "replay_requests_remaining") {
		t.Error("Expected metrics output to contain replay_requests_remaining")
	}

	t.Logf("Metrics endpoint returned %d bytes of data", len(bodyStr))
}

func TestFetchCommand_Integration(t *testing.T) {
	redisClient, cleanup := setupTestRedis(t)
	defer cleanup()

	mock := testutil.NewMockBackend()
	defer mock.Close()

	mock.ServeReplay(testutil.ReplayFixture{
		Org:      "acme",
		Project:  "frontend",
		ReplayID: "r-1",
		Record: map[string]interface{}{
			"id":             "r-1",
			"project_slug":   "frontend",
			"count_segments": 1,
			"count_errors":   0,
		},
		Segments: []map[string]interface{}{
			{"segment_id": 0},
		},
	})

	flagOrg = "acme"
	flagProject = "frontend"
	flagPerPage = 100
	t.Setenv("BACKEND_URL", mock.URL())
	t.Setenv("REDIS_URL", redisClient.Options().Addr)

	app, err := buildApp("r-1")
	if err != nil {
		t.Fatalf("Failed to build app: %v", err)
	}
	defer app.close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result := app.agg.Fetch(ctx)

	if result.Status != query.StatusSuccess {
		t.Fatalf("Expected success status, got %s", result.Status)
	}
	if result.Record == nil || result.Record.ID != "r-1" {
		t.Errorf("Expected record r-1, got %+v", result.Record)
	}
	if len(result.Segments) != 1 {
		t.Errorf("Expected 1 segment, got %d", len(result.Segments))
	}

	if err := printAggregate(result); err != nil {
		t.Errorf("Expected printable summary, got %v", err)
	}
}
