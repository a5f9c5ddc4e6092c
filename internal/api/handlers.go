package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/spherical/bill-assistant/internal/domain"
	"github.com/spherical/bill-assistant/internal/observability"
	"github.com/spherical/bill-assistant/internal/pipeline"
)

// multipartOverhead is the slack allowed on top of the PDF size limit for form framing.
const multipartOverhead = 1 << 20

// Handler serves the session endpoints.
type Handler struct {
	svc       *pipeline.Service
	logger    *observability.Logger
	maxUpload int64
}

// NewHandler creates a new session handler.
func NewHandler(svc *pipeline.Service, maxUpload int64, logger *observability.Logger) *Handler {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Handler{svc: svc, logger: logger, maxUpload: maxUpload}
}

// SessionDTO is returned when a session is created.
type SessionDTO struct {
	SessionID string        `json:"sessionId"`
	History   []domain.Turn `json:"history"`
}

// AskRequestDTO is the body of POST /ask.
type AskRequestDTO struct {
	Question string `json:"question"`
}

// AskResponseDTO carries the answer and the visible history.
type AskResponseDTO struct {
	Answer  string        `json:"answer"`
	History []domain.Turn `json:"history"`
}

// DocumentDTO describes an extracted upload.
type DocumentDTO struct {
	Name  string `json:"name"`
	Pages int    `json:"pages"`
	Text  string `json:"text"`
}

// ContextDTO is the active translated context.
type ContextDTO struct {
	SourceName string `json:"sourceName"`
	Text       string `json:"text"`
}

// CreateSession handles POST /sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Sessions().Create(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, SessionDTO{
		SessionID: sess.ID,
		History:   sess.Conversation().History(),
	})
}

// ListSessions handles GET /sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.svc.Sessions().List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// GetSession handles GET /sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Sessions().Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Summary())
}

// DeleteSession handles DELETE /sessions/{id}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Sessions().Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadDocument handles POST /sessions/{id}/document with a multipart "file" field.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, domain.ValidationError(fmt.Sprintf("upload exceeds %d bytes", h.maxUpload), err))
			return
		}
		h.fail(w, r, domain.ValidationError("multipart field \"file\" is required", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.fail(w, r, domain.IOError("failed to read upload", err))
		return
	}

	doc, err := h.svc.Upload(r.Context(), chi.URLParam(r, "id"), header.Filename, data)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentDTO{Name: doc.Name, Pages: len(doc.Pages), Text: doc.Text})
}

// Translate handles POST /sessions/{id}/translate. With ?stream=true the
// chunk progress is sent as server-sent events ending in a "result" or
// "error" event.
func (h *Handler) Translate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if stream, _ := strconv.ParseBool(r.URL.Query().Get("stream")); stream {
		h.translateStream(w, r, id)
		return
	}

	dc, err := h.svc.Translate(r.Context(), id, nil)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ContextDTO{SourceName: dc.SourceName, Text: dc.Text})
}

type translateResult struct {
	dc  domain.DocumentContext
	err error
}

func (h *Handler) translateStream(w http.ResponseWriter, r *http.Request, id string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.fail(w, r, domain.ValidationError("streaming not supported", nil))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events := make(chan domain.StreamEvent, 32)
	done := make(chan translateResult, 1)
	go func() {
		dc, err := h.svc.Translate(r.Context(), id, events)
		done <- translateResult{dc: dc, err: err}
	}()

	for {
		select {
		case ev := <-events:
			writeSSE(w, string(ev.Type), ev)
			flusher.Flush()
		case res := <-done:
			for drained := false; !drained; {
				select {
				case ev := <-events:
					writeSSE(w, string(ev.Type), ev)
				default:
					drained = true
				}
			}
			if res.err != nil {
				h.logFailure(r, res.err)
				_, message := StatusFor(res.err)
				writeSSE(w, "error", ErrorResponse{Error: string(domain.TypeOf(res.err)), Message: message})
			} else {
				writeSSE(w, "result", ContextDTO{SourceName: res.dc.SourceName, Text: res.dc.Text})
			}
			flusher.Flush()
			return
		}
	}
}

func writeSSE(w io.Writer, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// Ask handles POST /sessions/{id}/ask.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, r, domain.ValidationError("invalid request body", err))
		return
	}

	id := chi.URLParam(r, "id")
	answer, err := h.svc.Ask(r.Context(), id, req.Question)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	history, err := h.svc.History(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AskResponseDTO{Answer: answer.Content, History: visibleTurns(history, false)})
}

// History handles GET /sessions/{id}/history. The system turn is hidden
// unless includeSystem=true.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	includeSystem, _ := strconv.ParseBool(r.URL.Query().Get("includeSystem"))
	history, err := h.svc.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, visibleTurns(history, includeSystem))
}

// Reset handles POST /sessions/{id}/reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	transcript, err := h.svc.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionDTO{SessionID: chi.URLParam(r, "id"), History: transcript})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logFailure(r, err)
	writeError(w, err)
}

func (h *Handler) logFailure(r *http.Request, err error) {
	status, _ := StatusFor(err)
	logger := h.logger.ForRequest(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		return
	}
	logger.Debug().Err(err).Str("path", r.URL.Path).Msg("Request rejected")
}

func visibleTurns(turns []domain.Turn, includeSystem bool) []domain.Turn {
	out := make([]domain.Turn, 0, len(turns))
	for _, t := range turns {
		if t.Role == domain.RoleSystem && !includeSystem {
			continue
		}
		out = append(out, t)
	}
	return out
}
