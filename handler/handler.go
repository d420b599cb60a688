package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"pipedrive-agent/internal/domain"
	"pipedrive-agent/internal/usecase"
)

const (
	headerCorrelationID = "X-Correlation-Id"

	errorUnauthorized     = "UNAUTHORIZED"
	errorNotFound         = "NOT_FOUND"
	errorMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

// Assistant is the chat surface the handler exposes over HTTP.
type Assistant interface {
	Start(ctx context.Context, session string) ([]domain.ChatMessage, error)
	Send(ctx context.Context, session, text string) ([]domain.ChatMessage, error)
	SendAudio(ctx context.Context, session string, audio domain.Audio) ([]domain.ChatMessage, error)
	RunAction(ctx context.Context, session, action string, stageID int) ([]domain.ChatMessage, error)
	Transcript(ctx context.Context, session string) ([]domain.ChatMessage, error)
	Session(ctx context.Context, session string) (domain.SessionMeta, error)
	End(ctx context.Context, session string) error
}

type Handler struct {
	assistant Assistant
	sessions  SessionProvider
	logger    *zap.Logger
	validate  *validator.Validate
}

type messageRequest struct {
	Text string `json:"text" validate:"required"`
}

type transcriptionRequest struct {
	Audio       string `json:"audio"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

type actionRequest struct {
	Action  string `json:"action" validate:"required"`
	StageID int    `json:"stageId" validate:"gte=0"`
}

type messagesResponse struct {
	Messages []domain.ChatMessage `json:"messages"`
}

type sessionResponse struct {
	SessionID    string `json:"sessionId"`
	Turns        int    `json:"turns"`
	LastActivity string `json:"lastActivity,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHandler(a Assistant, sessions SessionProvider, logger *zap.Logger) (*Handler, error) {
	if a == nil {
		return nil, errors.New("handler: assistant must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("handler: session provider must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		assistant: a,
		sessions:  sessions,
		logger:    logger,
		validate:  validator.New(),
	}, nil
}

// Handle serves one API Gateway proxy request.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	started := time.Now()
	correlationID := headerValue(req.Headers, headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := h.logger.With(
		zap.String("correlationId", correlationID),
		zap.String("method", req.HTTPMethod),
		zap.String("path", req.Path),
	)

	resp := h.dispatch(ctx, req, log)
	if resp.Headers == nil {
		resp.Headers = map[string]string{}
	}
	resp.Headers[headerCorrelationID] = correlationID

	log.Info("request handled",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(started)),
	)
	return resp, nil
}

func (h *Handler) dispatch(ctx context.Context, req events.APIGatewayProxyRequest, log *zap.Logger) events.APIGatewayProxyResponse {
	path := "/" + strings.Trim(req.Path, "/")
	method := strings.ToUpper(req.HTTPMethod)

	allowed, known := routes[path]
	if !known {
		return jsonResponse(http.StatusNotFound, errorResponse{Error: errorNotFound})
	}
	if !allowed[method] {
		return jsonResponse(http.StatusMethodNotAllowed, errorResponse{Error: errorMethodNotAllowed})
	}

	userID, ok := h.sessions.UserID(req)
	if !ok {
		return jsonResponse(http.StatusUnauthorized, errorResponse{Error: errorUnauthorized})
	}
	log = log.With(zap.String("userId", userID))

	body, err := requestBody(req)
	if err != nil {
		return h.errorResponse(log, usecaseError(usecase.ErrorInvalidInput, "invalid_body_encoding", err))
	}

	var msgs []domain.ChatMessage
	switch method + " " + path {
	case "POST /session":
		msgs, err = h.assistant.Start(ctx, userID)

	case "GET /session":
		meta, err := h.assistant.Session(ctx, userID)
		if err != nil {
			return h.errorResponse(log, err)
		}
		return jsonResponse(http.StatusOK, sessionResponse{
			SessionID:    meta.SessionID,
			Turns:        meta.Turns,
			LastActivity: meta.LastActivity,
		})

	case "DELETE /session":
		if err := h.assistant.End(ctx, userID); err != nil {
			return h.errorResponse(log, err)
		}
		return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent, Headers: map[string]string{}}

	case "POST /messages":
		var in messageRequest
		if err := h.decode(body, &in); err != nil {
			return h.errorResponse(log, err)
		}
		msgs, err = h.assistant.Send(ctx, userID, in.Text)

	case "POST /transcriptions":
		var in transcriptionRequest
		if err := h.decode(body, &in); err != nil {
			return h.errorResponse(log, err)
		}
		data, decErr := base64.StdEncoding.DecodeString(in.Audio)
		if decErr != nil {
			return h.errorResponse(log, usecaseError(usecase.ErrorAudio, "invalid_audio_encoding", decErr))
		}
		msgs, err = h.assistant.SendAudio(ctx, userID, domain.Audio{
			Data:        data,
			Filename:    in.Filename,
			ContentType: in.ContentType,
		})

	case "POST /actions":
		var in actionRequest
		if err := h.decode(body, &in); err != nil {
			return h.errorResponse(log, err)
		}
		msgs, err = h.assistant.RunAction(ctx, userID, in.Action, in.StageID)

	case "GET /transcript":
		msgs, err = h.assistant.Transcript(ctx, userID)
	}
	if err != nil {
		return h.errorResponse(log, err)
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	return jsonResponse(http.StatusOK, messagesResponse{Messages: msgs})
}

var routes = map[string]map[string]bool{
	"/session":        {http.MethodGet: true, http.MethodPost: true, http.MethodDelete: true},
	"/messages":       {http.MethodPost: true},
	"/transcriptions": {http.MethodPost: true},
	"/actions":        {http.MethodPost: true},
	"/transcript":     {http.MethodGet: true},
}

func (h *Handler) decode(body string, v any) error {
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return usecaseError(usecase.ErrorInvalidInput, "invalid_json", err)
	}
	if err := h.validate.Struct(v); err != nil {
		return usecaseError(usecase.ErrorInvalidInput, "invalid_request", err)
	}
	return nil
}

func requestBody(req events.APIGatewayProxyRequest) (string, error) {
	if !req.IsBase64Encoded {
		return req.Body, nil
	}
	b, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func usecaseError(code usecase.ErrorCode, reason string, err error) error {
	return &usecase.Error{Code: code, Reason: reason, Err: err}
}

func (h *Handler) errorResponse(log *zap.Logger, err error) events.APIGatewayProxyResponse {
	status, code := statusFor(err)
	fields := []zap.Field{zap.Int("status", status), zap.String("code", code), zap.Error(err)}
	var ue *usecase.Error
	if errors.As(err, &ue) {
		fields = append(fields, zap.String("reason", ue.Reason))
	}
	if status >= 500 {
		log.Error("request failed", fields...)
	} else {
		log.Warn("request rejected", fields...)
	}
	return jsonResponse(status, errorResponse{Error: code})
}

func statusFor(err error) (int, string) {
	var ue *usecase.Error
	if !errors.As(err, &ue) {
		return http.StatusInternalServerError, string(usecase.ErrorInternal)
	}
	switch ue.Code {
	case usecase.ErrorInvalidInput, usecase.ErrorAudio:
		return http.StatusBadRequest, string(ue.Code)
	case usecase.ErrorInputValidation:
		return http.StatusUnprocessableEntity, string(ue.Code)
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, string(ue.Code)
	default:
		return http.StatusInternalServerError, string(usecase.ErrorInternal)
	}
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
