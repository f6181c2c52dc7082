// Package httpapi exposes sessions over HTTP and websockets.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/YassineElZaart/learn-chess/internal/archive"
	"github.com/YassineElZaart/learn-chess/internal/hub"
	"github.com/YassineElZaart/learn-chess/internal/obslog"
	"github.com/YassineElZaart/learn-chess/internal/render"
	"github.com/YassineElZaart/learn-chess/internal/rules"
	"github.com/YassineElZaart/learn-chess/internal/session"
)

// Identity headers set by the fronting proxy.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserName = "X-User-Name"
)

// Archive is the read side of finished-game storage.
type Archive interface {
	Get(ctx context.Context, gameID string) (*archive.Result, error)
}

// Deps are the collaborators of the HTTP surface. Archive and Renderer are optional.
type Deps struct {
	Machine  *session.Machine
	Oracle   rules.Oracle
	Hub      *hub.Hub
	Renderer *render.Renderer
	Archive  Archive
	// OriginPatterns are passed to the websocket handshake; empty allows
	// same-origin requests only.
	OriginPatterns []string
}

type Server struct {
	machine  *session.Machine
	oracle   rules.Oracle
	hub      *hub.Hub
	renderer *render.Renderer
	archive  Archive
	origins  []string
	engine   *gin.Engine
}

func New(d Deps) *Server {
	s := &Server{
		machine:  d.Machine,
		oracle:   d.Oracle,
		hub:      d.Hub,
		renderer: d.Renderer,
		archive:  d.Archive,
		origins:  d.OriginPatterns,
	}
	if s.renderer == nil {
		s.renderer = render.New()
	}
	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), requestLog(), identity())
	s.routes(s.engine)
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	games := r.Group("/games")
	{
		games.POST("", s.createGame)
		games.GET("", s.listGames)
		games.GET("/:id", s.getGame)
		games.GET("/:id/board.png", s.boardPNG)
		games.GET("/:id/legal-moves", s.legalMoves)
		games.GET("/:id/pgn", s.pgn)
		games.GET("/:id/ws", s.attach)
	}
}

func requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		obslog.L().Debug("http_request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

// identity reads the caller from headers, falling back to query parameters
// for browser websocket clients that cannot set headers.
func identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderUserID))
		name := strings.TrimSpace(c.GetHeader(HeaderUserName))
		if id == "" {
			id = strings.TrimSpace(c.Query("user_id"))
		}
		if name == "" {
			name = strings.TrimSpace(c.Query("user_name"))
		}
		if id != "" {
			c.Set("actor_id", id)
			c.Set("actor_name", name)
		}
		c.Next()
	}
}
