// Package notify posts finished-game summaries to an HTTP webhook.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/YassineElZaart/learn-chess/internal/domain"
	"github.com/YassineElZaart/learn-chess/internal/obslog"
	"github.com/YassineElZaart/learn-chess/internal/session"
)

// HeaderProvider allows injecting per-request headers.
type HeaderProvider func() map[string]string

// Renderer produces the human readable line sent along with a result.
// *msgcat.Catalog satisfies it.
type Renderer interface {
	Render(key string, data any) (string, error)
}

// Player is a seat in the payload.
type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Payload is the JSON body of a result notification.
type Payload struct {
	Event      string   `json:"event"`
	GameID     string   `json:"gameId"`
	Status     string   `json:"status"`
	Winner     string   `json:"winner"`
	Reason     string   `json:"reason"`
	White      *Player  `json:"white,omitempty"`
	Black      *Player  `json:"black,omitempty"`
	Moves      []string `json:"moves"`
	Transcript string   `json:"transcript"`
	FinalFEN   string   `json:"finalFen"`
	EndedAt    int64    `json:"endedAt"`
	Text       string   `json:"text,omitempty"`
}

type Webhook struct {
	url     string
	http    *fasthttp.Client
	headers HeaderProvider
	text    Renderer

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Webhook)

func WithTimeout(d time.Duration) Option {
	return func(w *Webhook) { w.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(w *Webhook) { w.retryMax = max }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(w *Webhook) { w.headers = h }
}

func WithRenderer(r Renderer) Option {
	return func(w *Webhook) { w.text = r }
}

// WithDial replaces the dialer, mostly for in-memory listeners in tests.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(w *Webhook) { w.http.Dial = dial }
}

func New(url string, opts ...Option) *Webhook {
	w := &Webhook{
		url:            strings.TrimSpace(url),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 5 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

var _ session.ResultSink = (*Webhook)(nil)

// SessionEnded implements session.ResultSink.
func (w *Webhook) SessionEnded(ctx context.Context, s *domain.Session, reason string) error {
	if w == nil || w.url == "" || s == nil {
		return nil
	}
	p := PayloadFor(s, reason)
	if w.text != nil {
		txt, err := w.text.Render("events.game_ended", map[string]string{"Reason": reason, "Winner": p.Winner})
		if err != nil {
			obslog.L().Warn("notify_render_failed", zap.String("game_id", s.ID), zap.Error(err))
		} else {
			p.Text = txt
		}
	}
	return w.post(ctx, p)
}

// PayloadFor builds the notification body for a terminal session.
func PayloadFor(s *domain.Session, reason string) Payload {
	p := Payload{
		Event:      "game_ended",
		GameID:     s.ID,
		Status:     string(s.Status),
		Winner:     string(s.Winner),
		Reason:     reason,
		Moves:      s.Moves.Notations(),
		Transcript: s.Transcript,
		FinalFEN:   s.CurrentFEN,
		EndedAt:    s.UpdatedAt.UnixMilli(),
	}
	if s.White != nil {
		p.White = &Player{ID: s.White.ID, Name: s.White.Name}
	}
	if s.Black != nil {
		p.Black = &Player{ID: s.Black.ID, Name: s.Black.Name}
	}
	return p
}

func (w *Webhook) post(ctx context.Context, in any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(w.url)
	req.Header.SetContentType("application/json")
	if w.headers != nil {
		for k, v := range w.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req.SetBody(payload)

	attempts := w.retryMax
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := w.http.DoDeadline(req, resp, w.computeDeadline(ctx))
		if err == nil {
			status := resp.StatusCode()
			if status >= 200 && status < 300 {
				return nil
			}
			err = fmt.Errorf("webhook status=%d body=%s", status, truncate(string(resp.Body()), 512))
			if !shouldRetryStatus(status) {
				return err
			}
		} else {
			err = fmt.Errorf("webhook request: %w", err)
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
			return lastErr
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (w *Webhook) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(w.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
