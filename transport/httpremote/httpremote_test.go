package httpremote

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncErrors "github.com/c0deZ3R0/sitesync/errors"
	"github.com/c0deZ3R0/sitesync/logging"
	"github.com/c0deZ3R0/sitesync/synckit"
)

type site struct {
	Name string `json:"name"`
}

type fieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// memAuthority rejects sites with an empty name.
type memAuthority struct {
	mu       sync.Mutex
	entities map[string]site
	failAll  error
	puts     []string
}

func newMemAuthority() *memAuthority {
	return &memAuthority{entities: map[string]site{}}
}

func (a *memAuthority) Put(_ context.Context, id string, value site) (site, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.puts = append(a.puts, id)
	if value.Name == "" {
		return site{}, &synckit.Rejection[fieldError]{
			Payload: fieldError{Field: "name", Reason: "required"},
			Err:     errors.New("name is required"),
		}
	}
	value.Name = strings.TrimSpace(value.Name)
	a.entities[id] = value
	return value, nil
}

func (a *memAuthority) All(context.Context) (map[string]site, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failAll != nil {
		return nil, a.failAll
	}
	out := make(map[string]site, len(a.entities))
	for id, s := range a.entities {
		out[id] = s
	}
	return out, nil
}

func newTestServer(t *testing.T, authority Authority[site], opts ...ServerOption) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHandler[site, fieldError](authority, logging.Discard().Logger, opts...))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server, opts ...ClientOption) *Client[site, fieldError] {
	return NewClient[site, fieldError](srv.URL, nil, logging.Discard().Logger, opts...)
}

func TestPushEntityStoresValue(t *testing.T) {
	authority := newMemAuthority()
	client := newTestClient(newTestServer(t, authority))

	stored, err := client.PushEntity(context.Background(), "a", site{Name: "  Alpha  "})
	require.NoError(t, err)
	assert.Equal(t, site{Name: "Alpha"}, stored)
	assert.Equal(t, site{Name: "Alpha"}, authority.entities["a"])
}

func TestPushEntityRejection(t *testing.T) {
	client := newTestClient(newTestServer(t, newMemAuthority()))

	_, err := client.PushEntity(context.Background(), "a", site{})
	require.Error(t, err)

	var rejection *synckit.Rejection[fieldError]
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, fieldError{Field: "name", Reason: "required"}, rejection.Payload)
	assert.True(t, syncErrors.IsKind(err, syncErrors.KindRejected))
	assert.False(t, syncErrors.IsRetryable(err))
	assert.Contains(t, err.Error(), "name is required")

	assert.Equal(t, fieldError{Field: "name", Reason: "required"}, synckit.ErrorPayload[fieldError](err))
}

func TestPushEntityChildID(t *testing.T) {
	authority := newMemAuthority()
	client := newTestClient(newTestServer(t, authority))

	id := synckit.ChildID("site-1", "contact")
	_, err := client.PushEntity(context.Background(), id, site{Name: "Contact"})
	require.NoError(t, err)
	assert.Equal(t, []string{id}, authority.puts)
}

func TestStatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"server error", http.StatusInternalServerError, true},
		{"unavailable", http.StatusServiceUnavailable, true},
		{"throttled", http.StatusTooManyRequests, true},
		{"bad request", http.StatusBadRequest, false},
		{"not found", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write(marshalError("boom"))
			}))
			defer srv.Close()
			client := newTestClient(srv)

			_, err := client.PushEntity(context.Background(), "a", site{Name: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.retryable, syncErrors.IsRetryable(err))
			assert.Contains(t, err.Error(), fmt.Sprintf("status %d", tt.status))
			assert.Contains(t, err.Error(), "boom")

			_, err = client.FetchAll(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.retryable, syncErrors.IsRetryable(err))
		})
	}
}

func TestNetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	client := newTestClient(srv)
	srv.Close()

	_, err := client.FetchAll(context.Background())
	require.Error(t, err)
	assert.True(t, syncErrors.IsRetryable(err))
}

func TestContextErrorsPassThrough(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)
	client := newTestClient(srv)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.PushEntity(ctx, "a", site{Name: "x"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchAll(t *testing.T) {
	authority := newMemAuthority()
	authority.entities["a"] = site{Name: "Alpha"}
	authority.entities["b"] = site{Name: "Beta"}
	client := newTestClient(newTestServer(t, authority))

	got, err := client.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]site{"a": {Name: "Alpha"}, "b": {Name: "Beta"}}, got)
}

func TestFetchAllEmpty(t *testing.T) {
	client := newTestClient(newTestServer(t, newMemAuthority()))

	got, err := client.FetchAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFetchAllAuthorityFailure(t *testing.T) {
	authority := newMemAuthority()
	authority.failAll = errors.New("database unavailable")
	client := newTestClient(newTestServer(t, authority))

	_, err := client.FetchAll(context.Background())
	require.Error(t, err)
	assert.True(t, syncErrors.IsRetryable(err))
	assert.Contains(t, err.Error(), "database unavailable")
}

func TestRequestCompression(t *testing.T) {
	tests := []struct {
		name             string
		nameSize         int
		compression      bool
		expectCompressed bool
	}{
		{"small payload", 100, true, false},
		{"large payload", 4096, true, true},
		{"compression disabled", 4096, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var encoding string
			handler := NewHandler[site, fieldError](newMemAuthority(), logging.Discard().Logger)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				encoding = r.Header.Get("Content-Encoding")
				handler.ServeHTTP(w, r)
			}))
			defer srv.Close()
			client := newTestClient(srv, WithClientCompression(tt.compression))

			name := strings.Repeat("x", tt.nameSize)
			stored, err := client.PushEntity(context.Background(), "a", site{Name: name})
			require.NoError(t, err)
			assert.Equal(t, name, stored.Name)
			if tt.expectCompressed {
				assert.Equal(t, "gzip", encoding)
			} else {
				assert.Empty(t, encoding)
			}
		})
	}
}

func TestResponseCompression(t *testing.T) {
	authority := newMemAuthority()
	for i := range 100 {
		authority.entities[fmt.Sprintf("site-%03d", i)] = site{Name: strings.Repeat("n", 50)}
	}
	srv := newTestServer(t, authority)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/entities", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	resp, err := newHTTPClient(DefaultClientOptions()).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))

	got, err := newTestClient(srv).FetchAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 100)
}

func TestServerRejectsOversizedBodies(t *testing.T) {
	srv := newTestServer(t, newMemAuthority(), WithMaxRequestSize(256), WithMaxDecompressedSize(512))

	put := func(body []byte, encoding string) int {
		req, err := http.NewRequest(http.MethodPut, srv.URL+"/entities/a", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		if encoding != "" {
			req.Header.Set("Content-Encoding", encoding)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode
	}

	large := []byte(`{"name":"` + strings.Repeat("x", 1024) + `"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, put(large, ""))

	// compresses under the wire limit but expands past the decompressed limit
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write(large)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.Less(t, buf.Len(), 256)
	assert.Equal(t, http.StatusRequestEntityTooLarge, put(buf.Bytes(), "gzip"))

	assert.Equal(t, http.StatusUnsupportedMediaType, put([]byte(`{"name":"a"}`), "br"))
	assert.Equal(t, http.StatusBadRequest, put([]byte(`{"name":`), ""))
	assert.Equal(t, http.StatusOK, put([]byte(`{"name":"a"}`), ""))
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, newMemAuthority())

	resp, err := http.Post(srv.URL+"/entities", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestClientResponseLimit(t *testing.T) {
	authority := newMemAuthority()
	authority.entities["a"] = site{Name: strings.Repeat("x", 4096)}
	client := newTestClient(newTestServer(t, authority, WithCompression(false)), WithMaxResponseSize(1024))

	_, err := client.FetchAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestManagerOverHTTP(t *testing.T) {
	authority := newMemAuthority()
	authority.entities["existing"] = site{Name: "Existing"}
	client := newTestClient(newTestServer(t, authority))

	manager, err := synckit.NewManager[site, fieldError](client, synckit.WithLogger(logging.Discard().Logger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	ctx := context.Background()
	_, err = manager.Pull(ctx)
	require.NoError(t, err)

	require.NoError(t, manager.Edit(ctx, "good", site{Name: " Good "}))
	require.NoError(t, manager.Edit(ctx, "bad", site{}))

	report, err := manager.Push(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, report.Synced)
	assert.Equal(t, []string{"bad"}, report.Failed)

	snap := manager.Snapshot()
	assert.Empty(t, snap.UnsyncedIDs())
	assert.Equal(t, []string{"bad"}, snap.ErrorIDs())

	good, ok := snap.Record("good")
	require.True(t, ok)
	require.NotNil(t, good.LastSyncedData)
	assert.Equal(t, "Good", good.LastSyncedData.Name)

	bad, ok := snap.Record("bad")
	require.True(t, ok)
	require.NotNil(t, bad.LastSyncedError)
	assert.Equal(t, fieldError{Field: "name", Reason: "required"}, *bad.LastSyncedError)

	existing, ok := snap.Value("existing")
	require.True(t, ok)
	assert.Equal(t, "Existing", existing.Name)
}
