// Package testutil provides testing utilities for the replay client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock backend endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// ReplayFixture is the in-memory replay a MockBackend serves: the root
// record plus every dependent collection.
type ReplayFixture struct {
	Org      string
	Project  string
	ReplayID string

	Record   map[string]interface{}
	Segments []map[string]interface{}

	// DiscoverErrors and PlatformErrors feed the two paginated error
	// datasets.
	DiscoverErrors []map[string]interface{}
	PlatformErrors []map[string]interface{}

	Feedback []map[string]interface{}
}

// MockBackend is a configurable mock replay backend for testing. It serves
// the root record endpoint, offset-paginated collections with Link
// continuation headers, and the feedback lookup, and counts requests per
// path.
type MockBackend struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	fixture  *ReplayFixture

	// Tracking
	RequestCount      int
	ConditionalCount  int
	PathCounts        map[string]int
	LastRequestHeader http.Header
}

// NewMockBackend creates a new mock backend server.
func NewMockBackend() *MockBackend {
	mock := &MockBackend{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		PathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCounts[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()

		// Track conditional requests
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.ConditionalCount++
		}
		mock.mu.Unlock()

		// Check for custom handler
		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		fixture := mock.fixture
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		if fixture != nil && mock.serveFixture(w, r, fixture) {
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockBackend) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockBackend) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ConditionalCount = 0
	m.PathCounts = make(map[string]int)
	m.LastRequestHeader = nil
}

// ServeReplay installs a replay fixture; every endpoint derived from it is
// served automatically.
func (m *MockBackend) ServeReplay(fixture ReplayFixture) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fixture = &fixture
}

// SetHandler sets a custom handler for a specific path, overriding the
// fixture for that path.
func (m *MockBackend) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockBackend) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockBackend) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPathCount returns the number of requests made to one path.
func (m *MockBackend) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCounts[path]
}

// GetConditionalCount returns the number of conditional requests.
func (m *MockBackend) GetConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConditionalCount
}

// serveFixture routes a request to the matching fixture endpoint. Returns
// false when the path does not belong to the fixture.
func (m *MockBackend) serveFixture(w http.ResponseWriter, r *http.Request, f *ReplayFixture) bool {
	recordPath := fmt.Sprintf("/organizations/%s/replays/%s/", f.Org, f.ReplayID)
	segmentsPath := fmt.Sprintf("/projects/%s/%s/replays/%s/recording-segments/", f.Org, f.Project, f.ReplayID)
	metaPath := fmt.Sprintf("/organizations/%s/replays-events-meta/", f.Org)
	feedbackPath := fmt.Sprintf("/organizations/%s/feedback-events/", f.Org)

	switch r.URL.Path {
	case recordPath:
		writeData(w, f.Record)
		return true

	case segmentsPath:
		m.servePage(w, r, f.Segments)
		return true

	case metaPath:
		switch r.URL.Query().Get("dataset") {
		case "discover":
			m.servePage(w, r, f.DiscoverErrors)
		default:
			m.servePage(w, r, f.PlatformErrors)
		}
		return true

	case feedbackPath:
		items := f.Feedback
		writeData(w, items)
		return true
	}

	return false
}

// servePage serves one offset-paginated slice of items with a Link
// continuation header in the backend's wire format.
func (m *MockBackend) servePage(w http.ResponseWriter, r *http.Request, items []map[string]interface{}) {
	q := r.URL.Query()

	perPage := 100
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil && v > 0 {
		perPage = v
	}

	offset := 0
	if cursor := q.Get("cursor"); cursor != "" {
		fmt.Sscanf(cursor, "0:%d:0", &offset)
	}

	end := offset + perPage
	if end > len(items) {
		end = len(items)
	}
	page := []map[string]interface{}{}
	if offset < len(items) {
		page = items[offset:end]
	}

	hasMore := end < len(items)
	nextCursor := fmt.Sprintf("0:%d:0", end)
	w.Header().Set("Link", fmt.Sprintf(
		`<%s%s?cursor=%s>; rel="next"; results="%t"; cursor="%s"`,
		m.server.URL, r.URL.Path, nextCursor, hasMore, nextCursor))

	writeData(w, page)
}

func writeData(w http.ResponseWriter, data interface{}) {
	w.Header().Set("X-RateLimit-Remaining", "100")
	w.Header().Set("X-RateLimit-Reset", "60")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
}

// defaultHandler provides a default backend-like response.
func (m *MockBackend) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-RateLimit-Remaining", "100")
	w.Header().Set("X-RateLimit-Reset", "60")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	// Handle conditional requests
	if r.Header.Get("If-None-Match") != "" {
		w.Header().Set("Expires", time.Now().Add(5*time.Minute).Format(http.TimeFormat))
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", `"default-etag"`)
	w.Header().Set("Expires", time.Now().Add(5*time.Minute).Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"data": {}}`))
}

// NewHealthyResponse creates a standard 200 OK response with backend headers.
func NewHealthyResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "100",
			"X-RateLimit-Reset":     "60",
			"ETag":                  `"test-etag-123"`,
			"Expires":               time.Now().Add(5 * time.Minute).Format(http.TimeFormat),
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "5",
			"X-RateLimit-Reset":     "30",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"X-RateLimit-Remaining": "95",
			"X-RateLimit-Reset":     "60",
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewConditionalHandler creates a handler that responds with 304 for
// conditional requests carrying a matching ETag.
func NewConditionalHandler(etag string, data string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "100")
		w.Header().Set("X-RateLimit-Reset", "60")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")

		if r.Header.Get("If-None-Match") == etag {
			w.Header().Set("Expires", time.Now().Add(5*time.Minute).Format(http.TimeFormat))
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		w.Header().Set("Expires", time.Now().Add(5*time.Minute).Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(data))
	}
}
