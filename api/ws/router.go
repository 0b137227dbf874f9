package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kasuganosora/rpgquest/game/player"
	"go.uber.org/zap"
)

// HandlerFunc handles one packet type. Handlers run on the session's read
// loop and hand quest work to the engine instead of evaluating rules here.
type HandlerFunc func(ctx context.Context, session *player.PlayerSession, payload json.RawMessage) error

// Reasons a packet never reaches a handler, or fails in one.
var (
	ErrMalformedPacket = errors.New("ws: malformed packet")
	ErrThrottled       = errors.New("ws: inbound rate exceeded")
	ErrReplayedPacket  = errors.New("ws: replayed or out-of-order packet")
	ErrUnhandledType   = errors.New("ws: unhandled packet type")
	ErrHandlerPanic    = errors.New("ws: handler panicked")
)

// Router maps client packet types (npc_interact, quest_reply, give_item, ...)
// to handlers. Registration happens before the server starts; Dispatch is
// then read-only and safe from every read loop.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{handlers: make(map[string]HandlerFunc), logger: logger}
}

// On registers fn for msgType, replacing any earlier handler.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// admit applies the per-session gates: the inbound rate limit, then the
// monotonic sequence check. Seq 0 opts out of sequencing.
func admit(s *player.PlayerSession, pkt *player.Packet) error {
	if !s.Allow() {
		return ErrThrottled
	}
	if pkt.Seq == 0 {
		return nil
	}
	if pkt.Seq <= s.LastSeq {
		return fmt.Errorf("%w: seq %d, last %d", ErrReplayedPacket, pkt.Seq, s.LastSeq)
	}
	s.LastSeq = pkt.Seq
	return nil
}

// Dispatch decodes raw, gates it and runs the matching handler under a fresh
// trace id. The returned error has already been logged.
func (r *Router) Dispatch(s *player.PlayerSession, raw []byte) error {
	var pkt player.Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("malformed packet", zap.Int64("char_id", s.CharID), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	if err := admit(s, &pkt); err != nil {
		r.logger.Warn("packet dropped",
			zap.Int64("char_id", s.CharID),
			zap.String("type", pkt.Type),
			zap.Error(err))
		return err
	}

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled message type",
			zap.String("type", pkt.Type),
			zap.Int64("char_id", s.CharID))
		return ErrUnhandledType
	}

	s.TraceID = uuid.NewString()
	ctx := context.WithValue(context.Background(), ctxKeyTraceID{}, s.TraceID)
	err := r.run(ctx, fn, s, pkt)
	if err != nil {
		r.logger.Error("handler error",
			zap.String("type", pkt.Type),
			zap.Int64("char_id", s.CharID),
			zap.String("trace_id", TraceIDFromCtx(ctx)),
			zap.Error(err))
	}
	return err
}

// run isolates a handler panic to the packet that caused it, so one bad
// payload does not end the player's connection.
func (r *Router) run(ctx context.Context, fn HandlerFunc, s *player.PlayerSession, pkt player.Packet) (err error) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("handler panic",
				zap.String("type", pkt.Type),
				zap.Any("panic", v),
				zap.Stack("stack"))
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, v)
		}
	}()
	return fn(ctx, s, pkt.Payload)
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx returns the trace id Dispatch attached, or "".
func TraceIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}
