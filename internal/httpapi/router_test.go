package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/bhandras/delight-chat/internal/chat"
	"github.com/bhandras/delight-chat/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticView session.View

func (s staticView) View() session.View { return session.View(s) }

func get(t *testing.T, h http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(t, NewRouter(Options{}), "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestDisabledEndpoints(t *testing.T) {
	router := NewRouter(Options{})
	require.Equal(t, http.StatusNotFound, get(t, router, "/metrics", nil).Code)
	require.Equal(t, http.StatusNotFound, get(t, router, "/v1/view", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := session.NewMetrics(reg)
	m.Publishes.Inc()

	rec := get(t, NewRouter(Options{Gatherer: reg}), "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "chatsession_view_publishes_total 1")
}

func TestViewEndpoint(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	parent := chat.Message{ID: "m1", Text: "hi", User: &chat.User{ID: "bob"}, CreatedAt: t0, Status: chat.StatusReceived, ReplyCount: 2}
	view := session.View{
		Phase: session.PhaseReady,
		Error: errors.New("boom"),
		Messages: []chat.Message{
			parent,
			{ID: "alice-1", Text: "draft", User: &chat.User{ID: "alice"}, CreatedAt: t0.Add(time.Second), Status: chat.StatusSending},
		},
		HasMore:      true,
		Thread:       &parent,
		Members:      map[string]chat.Member{"bob": {UserID: "bob"}, "alice": {UserID: "alice"}},
		Typing:       map[string]chat.Typing{"bob": {}},
		WatcherCount: 2,
		Rev:          7,
	}

	rec := get(t, NewRouter(Options{Session: staticView(view)}), "/v1/view", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got viewResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, session.PhaseReady, got.Phase)
	require.Equal(t, "boom", got.Error)
	require.Equal(t, uint64(7), got.Rev)
	require.True(t, got.HasMore)
	require.Equal(t, "m1", got.Thread)
	require.Equal(t, []string{"alice", "bob"}, got.Members)
	require.Equal(t, []string{"bob"}, got.Typing)
	require.Len(t, got.Messages, 2)
	require.Equal(t, "bob", got.Messages[0].UserID)
	require.Equal(t, 2, got.Messages[0].ReplyCount)
	require.Equal(t, chat.StatusSending, got.Messages[1].Status)
}

func TestCORS(t *testing.T) {
	router := NewRouter(Options{AllowedOrigins: []string{"http://dash.local"}})

	rec := get(t, router, "/healthz", http.Header{"Origin": {"http://dash.local"}})
	require.Equal(t, "http://dash.local", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = get(t, router, "/healthz", http.Header{"Origin": {"http://evil.local"}})
	require.Equal(t, http.StatusForbidden, rec.Code)
}
