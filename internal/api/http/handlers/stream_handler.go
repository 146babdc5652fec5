package handlers

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/mouradajaa1-dot/fix-manager/internal/domain"
	"github.com/mouradajaa1-dot/fix-manager/internal/propagation"
)

const defaultKeepAlive = 15 * time.Second

// StreamHandler serves live views as server-sent events.
type StreamHandler struct {
	hub       *propagation.Hub
	logger    *zap.Logger
	keepAlive time.Duration
}

// NewStreamHandler constructs handler.
func NewStreamHandler(hub *propagation.Hub, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{hub: hub, logger: logger, keepAlive: defaultKeepAlive}
}

type streamUpdate struct {
	Op      domain.ChangeOp     `json:"op"`
	Kind    domain.ResourceKind `json:"kind"`
	ID      string              `json:"id"`
	Version int64               `json:"version"`
	Doc     any                 `json:"doc,omitempty"`
}

// Stream GET /stream/:kind.
//
// Events: snapshot (the full view), update (one document added, modified
// or removed), stale (the feed was lost or recovered) and reset (updates
// were collapsed, carries a fresh full view) and closed (the subscriber was
// deleted or lost access to the kind; the stream ends).
func (h *StreamHandler) Stream(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	kind := domain.ResourceKind(c.Params("kind"))

	// The subscription outlives the handler: fasthttp runs the stream
	// writer after the handler returns.
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := h.hub.Subscribe(ctx, actor, kind)
	if err != nil {
		cancel()
		return err
	}

	encode := c.App().Config().JSONEncoder
	logger := h.logger.With(zap.String("actor_id", actor.ID), zap.String("kind", string(kind)))

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer sub.Close()

		send := func(event string, payload any) error {
			body, err := encode(payload)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, body); err != nil {
				return err
			}
			return nil
		}

		stale := sub.Stale()
		if err := send("snapshot", fiber.Map{"kind": kind, "stale": stale, "docs": documentViews(sub.Snapshot())}); err != nil {
			logger.Warn("stream snapshot failed", zap.Error(err))
			return
		}
		if err := w.Flush(); err != nil {
			return
		}

		// An empty scope yields a closed view; hold the connection open so
		// the client does not reconnect in a loop.
		done := sub.Done()
		if sub.Predicate().IsNone() {
			done = nil
		}
		ticker := time.NewTicker(h.keepAlive)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				if err := send("closed", fiber.Map{"kind": kind}); err == nil {
					_ = w.Flush()
				}
				return
			case <-ticker.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
			case <-sub.Notify():
				if now := sub.Stale(); now != stale {
					stale = now
					if err := send("stale", fiber.Map{"kind": kind, "stale": stale}); err != nil {
						return
					}
				}
				for _, u := range sub.Drain() {
					var err error
					if u.Op == propagation.OpReset {
						err = send("reset", fiber.Map{"kind": kind, "stale": stale, "docs": documentViews(sub.Snapshot())})
					} else {
						err = send("update", streamUpdate{Op: u.Op, Kind: u.Kind, ID: u.ID, Version: u.Version, Doc: documentView(u.Doc)})
					}
					if err != nil {
						logger.Warn("stream write failed", zap.Error(err))
						return
					}
				}
			}
			if err := w.Flush(); err != nil {
				logger.Debug("stream client gone", zap.Error(err))
				return
			}
		}
	}))
	return nil
}

func documentViews(docs []propagation.Document) []any {
	out := make([]any, 0, len(docs))
	for _, doc := range docs {
		out = append(out, documentView(doc))
	}
	return out
}

func documentView(doc propagation.Document) any {
	switch d := doc.(type) {
	case nil:
		return nil
	case *domain.Ticket:
		return ticketResponse(d)
	case *domain.Customer:
		return customerResponse(d)
	case *domain.LedgerEntry:
		return entryResponse(d)
	case *domain.Actor:
		return actorResponse(d)
	default:
		return doc
	}
}
