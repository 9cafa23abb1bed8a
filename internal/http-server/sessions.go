package httpserver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/iamvkosarev/lingro/internal/model"
	"github.com/iamvkosarev/lingro/internal/usecase"
	"github.com/iamvkosarev/lingro/pkg/local"
)

const maxUploadSize = 20 << 20

func (s *Server) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sessionFromRequest returns the session named in the path when it belongs
// to the caller. Sessions of other users are reported as missing.
func (s *Server) sessionFromRequest(r *http.Request) (*usecase.Session, error) {
	id := chi.URLParam(r, "sessionId")
	session, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	auth, ok := authFromContext(r.Context())
	if !ok || session.Options().Owner != auth.UserID.String() {
		return nil, fmt.Errorf("%w: %s", usecase.ErrSessionNotFound, id)
	}
	return session, nil
}

func newSessionResponse(session *usecase.Session) SessionResponse {
	opts := session.Options()
	return SessionResponse{
		ID:               session.ID,
		Language:         string(opts.Language),
		Role:             opts.Role.String(),
		LearningLanguage: opts.LearningLanguage,
		Messages:         newMessagesResponse(session.Messages()),
	}
}

func (s *Server) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	req := new(CreateSessionRequest)
	if r.ContentLength != 0 && !s.decodeJSON(w, r, req) {
		return
	}
	auth, _ := authFromContext(r.Context())

	opts := s.sessions.DefaultOptions()
	opts.Owner = auth.UserID.String()
	opts.Role = model.ParseUserRole(req.Role)
	opts.LearningLanguage = req.LearningLanguage
	if req.Language != "" {
		opts.Language = local.ParseLanguage(req.Language)
	}
	session := s.sessions.Create(opts)

	s.log.Info("session created", "session", session.ID, "user", auth.UserID)
	s.respondJSON(w, http.StatusCreated, newSessionResponse(session))
}

func (s *Server) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessionFromRequest(r)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newSessionResponse(session))
}

func (s *Server) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessionFromRequest(r)
	if err != nil {
		s.handleError(w, err)
		return
	}
	if err = s.sessions.Delete(session.ID); err != nil {
		s.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleResetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessionFromRequest(r)
	if err != nil {
		s.handleError(w, err)
		return
	}
	session.Reset()
	s.respondJSON(w, http.StatusOK, newSessionResponse(session))
}

// HandleSendMessage accepts the text and answers it in the background; the
// reply arrives on the event stream.
func (s *Server) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessionFromRequest(r)
	if err != nil {
		s.handleError(w, err)
		return
	}
	req := new(SendMessageRequest)
	if !s.decodeJSON(w, r, req) {
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		s.handleError(w, usecase.ErrEmptyMessage)
		return
	}
	session.Go("send text", func(ctx context.Context) error {
		return session.SendText(ctx, text)
	})
	s.respondJSON(w, http.StatusAccepted, AcceptedResponse{Status: "accepted"})
}

func (s *Server) HandlePickImage(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessionFromRequest(r)
	if err != nil {
		s.handleError(w, err)
		return
	}
	req := new(PickImageRequest)
	if !s.decodeJSON(w, r, req) {
		return
	}
	if req.URI == "" {
		s.handleError(w, NewValidationError("uri is required"))
		return
	}
	s.respondJSON(w, http.StatusCreated, newMessageResponse(session.PickImage(req.URI)))
}

func (s *Server) HandleVoiceNote(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessionFromRequest(r)
	if err != nil {
		s.handleError(w, err)
		return
	}
	req := new(VoiceNoteRequest)
	if !s.decodeJSON(w, r, req) {
		return
	}
	if req.URI == "" {
		s.handleError(w, NewValidationError("uri is required"))
		return
	}
	if req.DurationMs < 0 {
		s.handleError(w, NewValidationError("duration_ms must not be negative"))
		return
	}
	msg := session.AppendVoiceNote(req.URI, time.Duration(req.DurationMs)*time.Millisecond)
	s.respondJSON(w, http.StatusCreated, newMessageResponse(msg))
}

// HandleUploadFile reads the multipart "file" field into memory and uploads
// it in the background. The placeholder and its outcome show up on the event
// stream.
func (s *Server) HandleUploadFile(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessionFromRequest(r)
	if err != nil {
		s.handleError(w, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err = r.ParseMultipartForm(maxUploadSize); err != nil {
		s.handleError(w, NewValidationError("invalid multipart form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.handleError(w, NewValidationError("file is required"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.handleError(w, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	upload := model.FileUpload{
		Name:     header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		LocalURI: header.Filename,
		Body:     bytes.NewReader(data),
	}
	session.Go("upload file", func(ctx context.Context) error {
		return session.UploadFile(ctx, upload)
	})
	s.respondJSON(w, http.StatusAccepted, AcceptedResponse{Status: "accepted"})
}

func (s *Server) HandleFileAction(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessionFromRequest(r)
	if err != nil {
		s.handleError(w, err)
		return
	}
	req := new(FileActionRequest)
	if !s.decodeJSON(w, r, req) {
		return
	}
	action, err := model.ParseFileAction(req.Action)
	if err != nil {
		s.handleError(w, NewValidationError(err.Error()))
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if action == model.FileActionCustom && prompt == "" {
		s.handleError(w, usecase.ErrEmptyPrompt)
		return
	}
	fileID := chi.URLParam(r, "fileId")
	if _, ok := session.FindFile(fileID); !ok {
		s.handleError(w, fmt.Errorf("%w: %s", usecase.ErrFileNotInSession, fileID))
		return
	}

	session.Go("file action", func(ctx context.Context) error {
		return session.RunFileAction(ctx, fileID, action, prompt)
	})
	s.respondJSON(w, http.StatusAccepted, AcceptedResponse{Status: "accepted"})
}

func (s *Server) HandleGesture(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessionFromRequest(r)
	if err != nil {
		s.handleError(w, err)
		return
	}
	req := new(GestureRequest)
	if !s.decodeJSON(w, r, req) {
		return
	}
	kind, err := model.ParseGestureKind(req.Kind)
	if err != nil {
		s.handleError(w, NewValidationError(err.Error()))
		return
	}
	state, err := session.HandleGesture(r.Context(), model.GestureEvent{Kind: kind, DX: req.DX, DY: req.DY})
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, GestureResponse{State: string(state)})
}

func (s *Server) HandleSpeech(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessionFromRequest(r)
	if err != nil {
		s.handleError(w, err)
		return
	}
	req := new(SpeechRequest)
	if !s.decodeJSON(w, r, req) {
		return
	}
	url, err := session.Speak(r.Context(), req.Text, req.Voice)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, SpeechResponse{URL: url})
}
