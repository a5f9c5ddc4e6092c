// Package rpc provides the Connect chat service for the bill assistant.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/spherical/bill-assistant/internal/domain"
	"github.com/spherical/bill-assistant/internal/observability"
	"github.com/spherical/bill-assistant/internal/pipeline"
)

const (
	// ChatServiceName is the fully-qualified name of the chat service.
	ChatServiceName = "billassistant.v1.ChatService"
	// AskProcedure is the path of the Ask RPC.
	AskProcedure = "/" + ChatServiceName + "/Ask"
	// HistoryProcedure is the path of the History RPC.
	HistoryProcedure = "/" + ChatServiceName + "/History"
)

// ChatService implements the Connect chat service.
type ChatService struct {
	logger *observability.Logger
	svc    *pipeline.Service
}

// NewChatService creates a new chat service.
func NewChatService(svc *pipeline.Service, logger *observability.Logger) *ChatService {
	if logger == nil {
		logger = observability.Nop()
	}
	return &ChatService{logger: logger, svc: svc}
}

// AskRequest is the Ask request message.
type AskRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

// AskResponse is the Ask response message.
type AskResponse struct {
	Answer string `json:"answer"`
	Turns  int    `json:"turns"`
}

// HistoryRequest is the History request message.
type HistoryRequest struct {
	SessionID     string `json:"session_id"`
	IncludeSystem bool   `json:"include_system,omitempty"`
}

// HistoryResponse is the History response message.
type HistoryResponse struct {
	Turns []*Turn `json:"turns"`
}

// Turn is one transcript entry.
type Turn struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// Ask forwards a question to the session's conversation.
func (s *ChatService) Ask(ctx context.Context, req *connect.Request[AskRequest]) (*connect.Response[AskResponse], error) {
	msg := req.Msg
	if msg.SessionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("session_id is required"))
	}

	answer, err := s.svc.Ask(ctx, msg.SessionID, msg.Question)
	if err != nil {
		return nil, s.toConnectError(err)
	}

	history, err := s.svc.History(ctx, msg.SessionID)
	if err != nil {
		return nil, s.toConnectError(err)
	}

	return connect.NewResponse(&AskResponse{Answer: answer.Content, Turns: len(history)}), nil
}

// History returns the session transcript.
func (s *ChatService) History(ctx context.Context, req *connect.Request[HistoryRequest]) (*connect.Response[HistoryResponse], error) {
	msg := req.Msg
	if msg.SessionID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("session_id is required"))
	}

	history, err := s.svc.History(ctx, msg.SessionID)
	if err != nil {
		return nil, s.toConnectError(err)
	}

	resp := &HistoryResponse{Turns: make([]*Turn, 0, len(history))}
	for _, t := range history {
		if t.Role == domain.RoleSystem && !msg.IncludeSystem {
			continue
		}
		resp.Turns = append(resp.Turns, &Turn{
			Role:      string(t.Role),
			Content:   t.Content,
			CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return connect.NewResponse(resp), nil
}

func (s *ChatService) toConnectError(err error) error {
	code := CodeFor(err)
	if code == connect.CodeInternal || code == connect.CodeUnavailable {
		s.logger.Error().Err(err).Msg("Chat RPC failed")
	}
	if code == connect.CodeFailedPrecondition {
		return connect.NewError(code, errors.New(domain.NoContextUserMessage))
	}
	return connect.NewError(code, err)
}

// CodeFor maps a domain error to a Connect status code.
func CodeFor(err error) connect.Code {
	switch domain.TypeOf(err) {
	case domain.ErrorTypeValidation:
		return connect.CodeInvalidArgument
	case domain.ErrorTypeNotFound:
		return connect.CodeNotFound
	case domain.ErrorTypeNoContext:
		return connect.CodeFailedPrecondition
	case domain.ErrorTypeBackend, domain.ErrorTypeTranslation:
		return connect.CodeUnavailable
	default:
		return connect.CodeInternal
	}
}

// NewHandler returns the mount path and handler serving the chat service.
func NewHandler(s *ChatService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(AskProcedure, connect.NewUnaryHandler(AskProcedure, s.Ask, opts...))
	mux.Handle(HistoryProcedure, connect.NewUnaryHandler(HistoryProcedure, s.History, opts...))
	return "/" + ChatServiceName + "/", mux
}

// Codec is a Connect codec over encoding/json for the plain message structs above.
type Codec struct{}

// Name implements connect.Codec.
func (Codec) Name() string { return "json" }

// Marshal implements connect.Codec.
func (Codec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal implements connect.Codec.
func (Codec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
