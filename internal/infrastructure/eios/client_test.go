package eios

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigisung0503/eios/internal/config"
	"github.com/gigisung0503/eios/internal/logging"
)

type upstream struct {
	tokenRequests atomic.Int32
	tokenPayload  string

	mux *http.ServeMux
}

func newUpstream() *upstream {
	u := &upstream{tokenPayload: `{"access_token":"test-token"}`, mux: http.NewServeMux()}
	u.mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		u.tokenRequests.Add(1)
		_, _ = w.Write([]byte(u.tokenPayload))
	})
	u.mux.HandleFunc("/UserProfiles/me", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return u
}

func writePage(w http.ResponseWriter, items []map[string]any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"result": items})
}

func itemsPage(start, count int) []map[string]any {
	page := make([]map[string]any, 0, count)
	for i := 0; i < count; i++ {
		page = append(page, map[string]any{"id": start + i, "title": fmt.Sprintf("item %d", start+i)})
	}
	return page
}

func newTestClient(t *testing.T, u *upstream) *Client {
	t.Helper()
	server := httptest.NewServer(u.mux)
	t.Cleanup(server.Close)

	cfg := config.EIOSConfig{
		BaseURL:      server.URL,
		TokenURL:     server.URL + "/token",
		ClientID:     "client",
		ClientSecret: "secret",
		Scope:        "scope",
	}
	return NewClient(cfg, server.Client(), logging.New("error"))
}

func TestTokenMissingFieldIsAuthError(t *testing.T) {
	t.Parallel()

	u := newUpstream()
	u.tokenPayload = `{"token_type":"Bearer"}`
	client := newTestClient(t, u)

	_, err := client.Token(context.Background())
	require.Error(t, err)

	var authErr *AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestPaginationTermination(t *testing.T) {
	t.Parallel()

	// Pages of sizes [3,3,3,2]: exactly 4 requests, 11 items.
	var requests atomic.Int32
	u := newUpstream()
	u.mux.HandleFunc("/Items/matching-board/7", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		count := 3
		if start >= 9 {
			count = 2
		}
		writePage(w, itemsPage(start, count))
	})

	client := newTestClient(t, u)
	client.itemPageSize = 3
	client.maxItems = 100

	items, err := client.BoardItems(context.Background(), "7", time.Now())
	require.NoError(t, err)

	assert.Len(t, items, 11)
	assert.EqualValues(t, 4, requests.Load())
}

func TestPaginationCapHaltsRequests(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	u := newUpstream()
	u.mux.HandleFunc("/Items/matching-board/7", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		writePage(w, itemsPage(start, 2))
	})

	client := newTestClient(t, u)
	client.itemPageSize = 2
	client.maxItems = 4

	items, err := client.BoardItems(context.Background(), "7", time.Now())
	require.NoError(t, err)

	// The cap is deliberate truncation, not an error, and no request is
	// issued for offsets past it.
	assert.Len(t, items, 4)
	assert.EqualValues(t, 2, requests.Load())
}

func TestPaginationEmptyFirstPage(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	u := newUpstream()
	u.mux.HandleFunc("/Boards/by-tags", func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		writePage(w, nil)
	})

	client := newTestClient(t, u)

	boards, err := client.Boards(context.Background(), "ephem emro")
	require.NoError(t, err)

	assert.Empty(t, boards)
	assert.EqualValues(t, 1, requests.Load())
}

func TestUpstreamFailureIsUpstreamError(t *testing.T) {
	t.Parallel()

	u := newUpstream()
	u.mux.HandleFunc("/Boards/by-tags", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	client := newTestClient(t, u)

	_, err := client.Boards(context.Background(), "tag")
	require.Error(t, err)

	var upstreamErr *UpstreamError
	assert.ErrorAs(t, err, &upstreamErr)
}

func TestRejectedCredentialIsRefreshedOnce(t *testing.T) {
	t.Parallel()

	var boardRequests atomic.Int32
	u := newUpstream()
	u.mux.HandleFunc("/Boards/by-tags", func(w http.ResponseWriter, r *http.Request) {
		if boardRequests.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writePage(w, []map[string]any{{"id": 42, "tags": []string{"tag"}}})
	})

	client := newTestClient(t, u)

	boards, err := client.Boards(context.Background(), "tag")
	require.NoError(t, err)

	require.Len(t, boards, 1)
	assert.Equal(t, "42", boards[0].ID)
	assert.EqualValues(t, 2, boardRequests.Load())
	assert.EqualValues(t, 2, u.tokenRequests.Load())
}

func TestFetchCandidatesMergesAndAnnotates(t *testing.T) {
	t.Parallel()

	u := newUpstream()
	u.mux.HandleFunc("/Items/pinned-to-boards", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("start") != "0" {
			writePage(w, nil)
			return
		}
		writePage(w, []map[string]any{{"id": 1}, {"id": 2}})
	})
	u.mux.HandleFunc("/Items/matching-board/a", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("start") != "0" {
			writePage(w, nil)
			return
		}
		writePage(w, []map[string]any{{"id": 1}, {"id": 3, "title": "from a"}})
	})
	u.mux.HandleFunc("/Items/matching-board/b", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("start") != "0" {
			writePage(w, nil)
			return
		}
		writePage(w, []map[string]any{{"id": 3, "title": "from b"}, {"id": 4}})
	})

	client := newTestClient(t, u)

	candidates, err := client.FetchCandidates(context.Background(), []string{"a", "b"}, time.Now().Add(-5*time.Hour))
	require.NoError(t, err)

	// Item 3 is returned by both boards but yields exactly one candidate,
	// keeping the first board's version. Item 2 is pinned but matches no
	// board stream, so it is not a candidate.
	require.Len(t, candidates, 3)

	byID := map[string]int{}
	for i, c := range candidates {
		byID[c.ExternalID] = i
	}
	require.Contains(t, byID, "1")
	require.Contains(t, byID, "3")
	require.Contains(t, byID, "4")

	assert.True(t, candidates[byID["1"]].Pinned)
	assert.False(t, candidates[byID["3"]].Pinned)
	assert.False(t, candidates[byID["4"]].Pinned)
	assert.Equal(t, "from a", candidates[byID["3"]].Title)
}

func TestSinceTimestampIsISOZ(t *testing.T) {
	t.Parallel()

	var gotSince atomic.Value
	u := newUpstream()
	u.mux.HandleFunc("/Items/matching-board/9", func(w http.ResponseWriter, r *http.Request) {
		gotSince.Store(r.URL.Query().Get("timeSince"))
		writePage(w, nil)
	})

	client := newTestClient(t, u)

	since := time.Date(2025, time.October, 12, 10, 30, 0, 0, time.UTC)
	_, err := client.BoardItems(context.Background(), "9", since)
	require.NoError(t, err)

	assert.Equal(t, "2025-10-12T10:30:00Z", gotSince.Load())
}
