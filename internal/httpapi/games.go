package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/YassineElZaart/learn-chess/internal/archive"
	"github.com/YassineElZaart/learn-chess/internal/domain"
	"github.com/YassineElZaart/learn-chess/internal/obslog"
	"github.com/YassineElZaart/learn-chess/internal/render"
	"github.com/YassineElZaart/learn-chess/internal/session"
	"github.com/YassineElZaart/learn-chess/pkg/sessiondto"
)

func actorFrom(c *gin.Context) (domain.Participant, bool) {
	id := c.GetString("actor_id")
	if id == "" {
		return domain.Participant{}, false
	}
	return domain.Participant{ID: id, Name: c.GetString("actor_name")}, true
}

func (s *Server) fail(c *gin.Context, err error) {
	ev := s.machine.ErrorDelivery(c.Param("id"), c.GetString("actor_id"), err).Event
	status := statusFor(domain.Error(ev.Code))
	if status >= http.StatusInternalServerError {
		obslog.L().Error("http_request_failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, sessiondto.ErrorBody{Code: ev.Code, Message: ev.Message})
}

func statusFor(code domain.Error) int {
	switch code {
	case domain.ErrSessionNotFound:
		return http.StatusNotFound
	case domain.ErrInvalidPosition, domain.ErrMalformedCommand, domain.ErrIllegalMove, domain.ErrAmbiguousMove:
		return http.StatusBadRequest
	case domain.ErrNotAPlayer:
		return http.StatusForbidden
	case domain.ErrInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusConflict
	}
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, sessiondto.ErrorBody{Code: "unauthorized", Message: HeaderUserID + " is required"})
}

func (s *Server) createGame(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		unauthorized(c)
		return
	}
	var req sessiondto.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		s.fail(c, domain.ErrMalformedCommand)
		return
	}
	sess, err := s.machine.Create(c.Request.Context(), session.CreateInput{StartingFEN: req.FEN, Creator: &actor})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, session.Snapshot(sess))
}

func (s *Server) listGames(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		unauthorized(c)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	items, err := s.machine.List(c.Request.Context(), actor.ID, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]sessiondto.Summary, 0, len(items))
	for _, it := range items {
		out = append(out, session.Summarize(it))
	}
	c.JSON(http.StatusOK, gin.H{"games": out})
}

func (s *Server) getGame(c *gin.Context) {
	sess, err := s.machine.State(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session.Snapshot(sess))
}

func (s *Server) legalMoves(c *gin.Context) {
	moves, err := s.machine.LegalMoves(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"moves": moves})
}

func (s *Server) boardPNG(c *gin.Context) {
	ctx := c.Request.Context()
	sess, err := s.machine.State(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	flip := false
	switch c.Query("flip") {
	case "1", "true":
		flip = true
	case "":
		// black players see their own side by default
		if side, ok := sess.SeatOf(c.GetString("actor_id")); ok && side == domain.Black {
			flip = true
		}
	}
	size, _ := strconv.Atoi(c.Query("size"))
	img, err := s.renderer.RenderPNG(ctx, sess.CurrentFEN, render.Options{
		Flip:       flip,
		LastMove:   s.lastCoordinate(sess),
		SquareSize: size,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", img)
}

// lastCoordinate re-resolves the last logged move to find its squares.
func (s *Server) lastCoordinate(sess *domain.Session) string {
	last, ok := sess.Moves.Last()
	if !ok {
		return ""
	}
	before := sess.StartingFEN
	if n := sess.Moves.Len(); n > 1 {
		before = sess.Moves[n-2].ResultingFEN
	}
	res, err := s.oracle.Resolve(before, last.Notation)
	if err != nil || !res.Resolved {
		return ""
	}
	return res.Coordinate
}

func (s *Server) pgn(c *gin.Context) {
	if s.archive == nil {
		s.fail(c, domain.ErrSessionNotFound)
		return
	}
	res, err := s.archive.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, archive.ErrNotFound) {
		s.fail(c, domain.ErrSessionNotFound)
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/x-chess-pgn", []byte(res.PGN))
}
