// ABOUTME: HTTP API for the session gateway, consumed by the business application layer.
// ABOUTME: Every operation returns the uniform {success, message, data, error} envelope.

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/garapadev/garapasystem-sub001/internal/auth"
	"github.com/garapadev/garapasystem-sub001/internal/session"
	"github.com/garapadev/garapasystem-sub001/internal/worker"
)

// defaultMaxBodyBytes bounds request bodies when no media size ceiling is
// configured.
const defaultMaxBodyBytes = 16 << 20

// Envelope is the uniform response wrapper for every public operation.
// Operations never raise past their boundary; anticipated faults land in
// the Error field.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// apiRequest is the JSON body accepted by all POST operations. Session
// operations use the first three fields; message operations add the rest.
type apiRequest struct {
	Session    string `json:"session"`
	SessionKey string `json:"sessionKey"`
	Token      string `json:"token"`
	ChatID     string `json:"chatId,omitempty"`
	Content    string `json:"content,omitempty"`
	MediaURL   string `json:"mediaUrl,omitempty"`
	Caption    string `json:"caption,omitempty"`
	FileName   string `json:"fileName,omitempty"`
}

// sessionData is the JSON shape of a session inside the envelope.
type sessionData struct {
	Session      string `json:"session"`
	Status       string `json:"status"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
	QRCode       string `json:"qrCode,omitempty"`
	LastActivity string `json:"lastActivity,omitempty"`
	CreatedAt    string `json:"createdAt"`
	UpdatedAt    string `json:"updatedAt"`
}

// sendData is the JSON shape of a send acknowledgment inside the envelope.
type sendData struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

// RegisterRoutes registers the gateway API on the mux.
func (g *Gateway) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)

	mux.HandleFunc("/api/sessions", g.handleListSessions)
	mux.HandleFunc("/api/sessions/start", g.handleStartSession)
	mux.HandleFunc("/api/sessions/status", g.handleSessionStatus)
	mux.HandleFunc("/api/sessions/qrcode", g.handleSessionQR)
	mux.HandleFunc("/api/sessions/close", g.handleCloseSession)

	mux.HandleFunc("/api/messages/text", g.handleSendText)
	mux.HandleFunc("/api/messages/image", g.handleSendImage)
	mux.HandleFunc("/api/messages/audio", g.handleSendAudio)
	mux.HandleFunc("/api/messages/video", g.handleSendVideo)
	mux.HandleFunc("/api/messages/document", g.handleSendDocument)
}

// parseRequest decodes and minimally validates a POST body.
func (g *Gateway) parseRequest(w http.ResponseWriter, r *http.Request) (*apiRequest, bool) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return nil, false
	}

	maxBytes := g.config.Media.MaxSizeBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	var req apiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, fmt.Errorf("%w: invalid JSON body", ErrInvalidParameters))
		return nil, false
	}
	if req.Session == "" {
		g.writeError(w, fmt.Errorf("%w: session is required", ErrInvalidParameters))
		return nil, false
	}
	return &req, true
}

func (g *Gateway) handleStartSession(w http.ResponseWriter, r *http.Request) {
	req, ok := g.parseRequest(w, r)
	if !ok {
		return
	}

	s, err := g.manager.Start(r.Context(), req.Session, req.SessionKey, req.Token)
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeSuccess(w, "session started", toSessionData(s))
}

func (g *Gateway) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := g.parseRequest(w, r)
	if !ok {
		return
	}

	s, err := g.manager.GetStatus(r.Context(), req.Session, req.Token)
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeSuccess(w, "session status", toSessionData(s))
}

func (g *Gateway) handleSessionQR(w http.ResponseWriter, r *http.Request) {
	req, ok := g.parseRequest(w, r)
	if !ok {
		return
	}

	s, err := g.manager.GetQRCode(req.Session, req.Token)
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeSuccess(w, "qr code", toSessionData(s))
}

func (g *Gateway) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	req, ok := g.parseRequest(w, r)
	if !ok {
		return
	}

	s, err := g.manager.Close(r.Context(), req.Session, req.Token)
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeSuccess(w, "session closed", toSessionData(s))
}

// handleListSessions handles GET /api/sessions?token=...
func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sessions, err := g.manager.Sessions(r.URL.Query().Get("token"))
	if err != nil {
		g.writeError(w, err)
		return
	}

	data := make([]sessionData, len(sessions))
	for i, s := range sessions {
		data[i] = toSessionData(s)
	}
	g.writeSuccess(w, "sessions", data)
}

func (g *Gateway) handleSendText(w http.ResponseWriter, r *http.Request) {
	g.handleSend(w, r, func(req *apiRequest) (*SendResult, error) {
		return g.dispatcher.SendText(req.Session, req.Token, req.ChatID, req.Content)
	})
}

func (g *Gateway) handleSendImage(w http.ResponseWriter, r *http.Request) {
	g.handleSend(w, r, func(req *apiRequest) (*SendResult, error) {
		return g.dispatcher.SendImage(req.Session, req.Token, req.ChatID, req.MediaURL, req.Caption)
	})
}

func (g *Gateway) handleSendAudio(w http.ResponseWriter, r *http.Request) {
	g.handleSend(w, r, func(req *apiRequest) (*SendResult, error) {
		return g.dispatcher.SendAudio(req.Session, req.Token, req.ChatID, req.MediaURL)
	})
}

func (g *Gateway) handleSendVideo(w http.ResponseWriter, r *http.Request) {
	g.handleSend(w, r, func(req *apiRequest) (*SendResult, error) {
		return g.dispatcher.SendVideo(req.Session, req.Token, req.ChatID, req.MediaURL, req.Caption)
	})
}

func (g *Gateway) handleSendDocument(w http.ResponseWriter, r *http.Request) {
	g.handleSend(w, r, func(req *apiRequest) (*SendResult, error) {
		caption := req.FileName
		if caption == "" {
			caption = req.Caption
		}
		return g.dispatcher.SendDocument(req.Session, req.Token, req.ChatID, req.MediaURL, caption)
	})
}

// handleSend is the shared POST /api/messages/* path.
func (g *Gateway) handleSend(w http.ResponseWriter, r *http.Request, send func(*apiRequest) (*SendResult, error)) {
	req, ok := g.parseRequest(w, r)
	if !ok {
		return
	}

	result, err := send(req)
	if err != nil {
		g.writeError(w, err)
		return
	}

	g.writeSuccess(w, "message sent", sendData{
		MessageID: result.MessageID,
		ChatID:    result.ChatID,
		Timestamp: result.Timestamp.Format(time.RFC3339),
		Status:    result.Status,
	})
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the gateway is serving. The worker may
// legitimately have zero sessions, so readiness does not depend on it.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{
		"sessions": g.registry.Len(),
		"channels": g.channels.Len(),
	})
}

// toSessionData converts a session to its JSON shape.
func toSessionData(s session.Session) sessionData {
	d := sessionData{
		Session:     s.ID,
		Status:      s.Status.String(),
		PhoneNumber: s.PhoneNumber,
		QRCode:      s.QRCode,
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   s.UpdatedAt.Format(time.RFC3339),
	}
	if !s.LastActivity.IsZero() {
		d.LastActivity = s.LastActivity.Format(time.RFC3339)
	}
	return d
}

// writeSuccess writes a success envelope.
func (g *Gateway) writeSuccess(w http.ResponseWriter, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Envelope{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// writeError maps a taxonomy error to an HTTP status and writes the
// failure envelope.
func (g *Gateway) writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errorStatus(err))
	_ = json.NewEncoder(w).Encode(Envelope{
		Success: false,
		Error:   err.Error(),
	})
}

// errorStatus maps the error taxonomy to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSessionNotConnected), errors.Is(err, worker.ErrChannelNotFound):
		return http.StatusConflict
	case errors.Is(err, ErrSessionLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, worker.ErrWorkerTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, worker.ErrWorkerUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
