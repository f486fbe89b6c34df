// Package httpapi serves the local observability endpoints of a running chat
// session: Prometheus metrics, a health probe and a JSON dump of the current
// view.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bhandras/delight-chat/internal/chat"
	"github.com/bhandras/delight-chat/internal/session"
	"github.com/bhandras/delight-chat/pkg/logger"
)

// ViewSource exposes the current session view.
type ViewSource interface {
	View() session.View
}

// Options configures the router.
type Options struct {
	// Gatherer is scraped by /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// Session backs /v1/view. Nil disables the endpoint.
	Session ViewSource
	// AllowedOrigins lists the browser origins allowed to read the API.
	// Empty allows all origins.
	AllowedOrigins []string
}

// NewRouter builds the gin engine.
func NewRouter(opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"*"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(opts.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = opts.AllowedOrigins
	}
	router.Use(cors.New(corsCfg))
	router.Use(LoggingMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	if opts.Session != nil {
		v1 := router.Group("/v1")
		v1.GET("/view", func(c *gin.Context) {
			c.JSON(http.StatusOK, newViewResponse(opts.Session.View()))
		})
	}
	return router
}

// Serve runs handler on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type messageResponse struct {
	ID         string             `json:"id"`
	UserID     string             `json:"user_id"`
	Text       string             `json:"text"`
	Status     chat.MessageStatus `json:"status"`
	ParentID   string             `json:"parent_id,omitempty"`
	ReplyCount int                `json:"reply_count,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

type viewResponse struct {
	Phase        session.Phase     `json:"phase"`
	Error        string            `json:"error,omitempty"`
	Rev          uint64            `json:"rev"`
	Loading      bool              `json:"loading"`
	LoadingMore  bool              `json:"loading_more"`
	HasMore      bool              `json:"has_more"`
	Thread       string            `json:"thread,omitempty"`
	Messages     []messageResponse `json:"messages"`
	Members      []string          `json:"members"`
	WatcherCount int               `json:"watcher_count"`
	Typing       []string          `json:"typing"`
}

func newViewResponse(v session.View) viewResponse {
	resp := viewResponse{
		Phase:        v.Phase,
		Rev:          v.Rev,
		Loading:      v.Loading,
		LoadingMore:  v.LoadingMore,
		HasMore:      v.HasMore,
		Messages:     make([]messageResponse, 0, len(v.Messages)),
		Members:      sortedKeys(v.Members),
		WatcherCount: v.WatcherCount,
		Typing:       sortedKeys(v.Typing),
	}
	if v.Error != nil {
		resp.Error = v.Error.Error()
	}
	if v.Thread != nil {
		resp.Thread = v.Thread.ID
	}
	for _, m := range v.Messages {
		resp.Messages = append(resp.Messages, messageResponse{
			ID:         m.ID,
			UserID:     m.UserID(),
			Text:       m.Text,
			Status:     m.Status,
			ParentID:   m.ParentID,
			ReplyCount: m.ReplyCount,
			CreatedAt:  m.CreatedAt,
		})
	}
	return resp
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
