package httpapi

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/YassineElZaart/learn-chess/internal/domain"
	"github.com/YassineElZaart/learn-chess/internal/hub"
	"github.com/YassineElZaart/learn-chess/internal/obslog"
	"github.com/YassineElZaart/learn-chess/internal/session"
	"github.com/YassineElZaart/learn-chess/pkg/sessiondto"
)

// attach upgrades to a websocket bound to one session. Callers without an
// identity join as spectators.
func (s *Server) attach(c *gin.Context) {
	sess, err := s.machine.State(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	actor, known := actorFrom(c)
	if !known {
		actor = domain.Participant{ID: "spectator-" + uuid.NewString()}
	}

	ws, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns:  s.origins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.String("session_id", sess.ID), zap.Error(err))
		return
	}

	conn := s.hub.Attach(sess.ID, actor.ID, ws)
	conn.Send(session.StateDelivery(sess, actor.ID).Event)
	conn.Serve(c.Request.Context(), func(ctx context.Context, conn *hub.Conn, cmd sessiondto.Command) {
		var out []session.Delivery
		if !known && cmd.Type != sessiondto.TypeRequestState {
			out = []session.Delivery{s.machine.ErrorDelivery(conn.SessionID, actor.ID, domain.ErrNotAPlayer)}
		} else {
			out = s.machine.Dispatch(ctx, session.CommandFrom(conn.SessionID, actor, cmd))
		}
		s.hub.Publish(out, conn)
	})
}
