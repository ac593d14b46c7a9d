// Package gateway exposes a Pipeline's command and event surface (spec §6)
// over a WebSocket connection, for an outer shell (browser captioning
// overlay, presenter console) to drive. The wire mechanics mirror the ASR
// Stream Adapter's own use of github.com/coder/websocket, here serving
// instead of dialing.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/univoice/core/internal/event"
	"github.com/univoice/core/internal/pipeline"
)

const writeTimeout = 5 * time.Second

// command is the JSON shape an outer shell sends as a WebSocket text frame
// (spec §6 command surface).
type command struct {
	Command string `json:"command"`
	Text    string `json:"text,omitempty"`
}

// reply is the JSON shape returned for every command (spec §6: "Each
// returns {ok} or {error, kind, message}").
type reply struct {
	OK      bool   `json:"ok"`
	Result  string `json:"result,omitempty"`
	Error   bool   `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// wireEvent is the JSON shape forwarded for every Unified Event on the
// "univoice:event" stream (spec §6 event surface).
type wireEvent struct {
	Seq     uint64 `json:"seq"`
	ID      string `json:"id"`
	TS      string `json:"ts"`
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

// Gateway bridges exactly one Pipeline to any number of concurrently
// connected WebSocket clients.
type Gateway struct {
	pipeline *pipeline.Pipeline
}

// New creates a Gateway fronting p.
func New(p *pipeline.Pipeline) *Gateway {
	return &Gateway{pipeline: p}
}

// ServeHTTP upgrades the request to a WebSocket and serves it until the
// client disconnects or the request context is cancelled. Binary frames are
// treated as raw PCM audio (spec §6 audio ingress); text frames are decoded
// as commands. Every event published on the pipeline's bus while the
// connection is open is forwarded as a text frame.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Error("gateway: websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go g.forwardEvents(ctx, conn)
	g.readLoop(ctx, conn)
}

func (g *Gateway) forwardEvents(ctx context.Context, conn *websocket.Conn) {
	sub := g.pipeline.Bus().Subscribe("gateway", 1024)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			g.writeEvent(ctx, conn, evt)
		}
	}
}

func (g *Gateway) writeEvent(ctx context.Context, conn *websocket.Conn, evt event.Event) {
	body, err := json.Marshal(wireEvent{
		Seq:     evt.Seq,
		ID:      evt.ID,
		TS:      evt.TS.Format(time.RFC3339Nano),
		Kind:    string(evt.Kind),
		Payload: evt.Payload,
	})
	if err != nil {
		slog.Warn("gateway: failed to marshal event", "kind", evt.Kind, "error", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, body); err != nil {
		slog.Debug("gateway: event write failed, client likely gone", "error", err)
	}
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			var closeErr websocket.CloseError
			if !errors.As(err, &closeErr) {
				slog.Debug("gateway: read loop ended", "error", err)
			}
			return
		}

		switch typ {
		case websocket.MessageBinary:
			g.handleAudio(ctx, conn, data)
		case websocket.MessageText:
			g.handleCommand(ctx, conn, data)
		}
	}
}

func (g *Gateway) handleAudio(_ context.Context, _ *websocket.Conn, frame []byte) {
	if err := g.pipeline.SendFrame(frame, false); err != nil {
		slog.Warn("gateway: send frame failed", "error", err)
	}
}

func (g *Gateway) handleCommand(ctx context.Context, conn *websocket.Conn, data []byte) {
	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		g.reply(ctx, conn, reply{Error: true, Kind: "ProtocolError", Message: err.Error()})
		return
	}

	switch cmd.Command {
	case "startListening":
		g.dispatch(ctx, conn, g.pipeline.StartListening(ctx))
	case "stopListening":
		g.dispatch(ctx, conn, g.pipeline.StopListening(ctx))
	case "pause":
		g.dispatch(ctx, conn, g.pipeline.Pause())
	case "resume":
		g.dispatch(ctx, conn, g.pipeline.Resume())
	case "clearHistory":
		g.pipeline.ClearHistory()
		g.reply(ctx, conn, reply{OK: true})
	case "generateVocabulary":
		terms, err := g.pipeline.GenerateVocabulary(ctx)
		if err != nil {
			g.dispatch(ctx, conn, err)
			return
		}
		body, _ := json.Marshal(terms)
		g.reply(ctx, conn, reply{OK: true, Result: string(body)})
	case "generateFinalReport":
		report, err := g.pipeline.GenerateFinalReport(ctx)
		if err != nil {
			g.dispatch(ctx, conn, err)
			return
		}
		g.reply(ctx, conn, reply{OK: true, Result: report})
	case "translateUserInput":
		translated, err := g.pipeline.TranslateUserInput(ctx, cmd.Text)
		if err != nil {
			g.dispatch(ctx, conn, err)
			return
		}
		g.reply(ctx, conn, reply{OK: true, Result: translated})
	default:
		g.reply(ctx, conn, reply{Error: true, Kind: "StateError", Message: fmt.Sprintf("unknown command %q", cmd.Command)})
	}
}

func (g *Gateway) dispatch(ctx context.Context, conn *websocket.Conn, err error) {
	if err != nil {
		g.reply(ctx, conn, reply{Error: true, Kind: "StateError", Message: err.Error()})
		return
	}
	g.reply(ctx, conn, reply{OK: true})
}

func (g *Gateway) reply(ctx context.Context, conn *websocket.Conn, r reply) {
	body, err := json.Marshal(r)
	if err != nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(writeCtx, websocket.MessageText, body)
}
