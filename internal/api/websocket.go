package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/spherical/bill-assistant/internal/observability"
	"github.com/spherical/bill-assistant/internal/pipeline"
)

// Frame types sent to WebSocket clients.
const (
	FrameAnswer = "answer"
	FrameError  = "error"
)

// Frame is one server message on the chat socket.
type Frame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// clientFrame accepts either a bare question or {"question": "..."}.
type clientFrame struct {
	Question string `json:"question"`
}

// ChatSocket serves a question/answer loop over a WebSocket.
type ChatSocket struct {
	svc            *pipeline.Service
	logger         *observability.Logger
	originPatterns []string
}

// NewChatSocket creates a new WebSocket chat handler.
func NewChatSocket(svc *pipeline.Service, allowedOrigins []string, logger *observability.Logger) *ChatSocket {
	if logger == nil {
		logger = observability.Nop()
	}
	return &ChatSocket{svc: svc, logger: logger, originPatterns: allowedOrigins}
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *ChatSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.svc.Sessions().Get(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.ForRequest(r.Context()).Warn().Err(err).Msg("Failed to accept WebSocket")
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "session ended")

	logger := h.logger.ForRequest(r.Context()).WithSession(id)
	logger.Info().Msg("Chat socket opened")

	h.loop(r.Context(), ws, id, logger)
	logger.Info().Msg("Chat socket closed")
}

func (h *ChatSocket) loop(ctx context.Context, ws *websocket.Conn, id string, logger *observability.Logger) {
	for {
		typ, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				logger.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}
		if typ != websocket.MessageText {
			if err := h.writeFrame(ctx, ws, Frame{Type: FrameError, Content: "only text frames are accepted"}); err != nil {
				return
			}
			continue
		}

		answer, err := h.svc.Ask(ctx, id, parseQuestion(message))
		frame := Frame{Type: FrameAnswer, Content: answer.Content}
		if err != nil {
			_, msg := StatusFor(err)
			frame = Frame{Type: FrameError, Content: msg}
		}
		if err := h.writeFrame(ctx, ws, frame); err != nil {
			logger.Debug().Err(err).Msg("WebSocket write error")
			return
		}
	}
}

func (h *ChatSocket) writeFrame(ctx context.Context, ws *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

func parseQuestion(message []byte) string {
	trimmed := strings.TrimSpace(string(message))
	if strings.HasPrefix(trimmed, "{") {
		var cf clientFrame
		if err := json.Unmarshal(message, &cf); err == nil {
			return cf.Question
		}
	}
	return trimmed
}
