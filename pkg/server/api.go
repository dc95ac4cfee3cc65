package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	cverrors "github.com/cephview/cephview/internal/errors"
	"github.com/cephview/cephview/pkg/middleware"
	"github.com/cephview/cephview/pkg/overlay"
	"github.com/cephview/cephview/pkg/protocol"
	"github.com/cephview/cephview/pkg/session"
)

// SessionResponse is returned when a session is created or fetched.
type SessionResponse struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"createdAt"`
	Snapshot  overlay.Snapshot `json:"snapshot"`
}

// ChangedHeader reports whether an operation request changed the registry.
const ChangedHeader = "X-Registry-Changed"

type imagePatch struct {
	Visible     *bool    `json:"visible"`
	Opacity     *float64 `json:"opacity"`
	ColorFilter *string  `json:"colorFilter"`
}

type activeImageBody struct {
	ID *string `json:"id"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create(clientIP(r))
	if err != nil {
		writeError(w, sessionError(err))
		return
	}
	s.logger.Debug("session created", "session_id", sess.ID, "ip", sess.IP)

	w.Header().Set("Location", "/api/sessions/"+sess.ID)
	writeJSON(w, http.StatusCreated, SessionResponse{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
		Snapshot:  sess.Registry().Snapshot(),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
		Snapshot:  sess.Registry().Snapshot(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.End(chi.URLParam(r, middleware.SessionParam)); err != nil {
		writeError(w, sessionError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddImage(w http.ResponseWriter, r *http.Request) {
	var img overlay.Image
	if !decodeBody(w, r, &img) {
		return
	}
	s.apply(w, r, protocol.AddImage(img))
}

func (s *Server) handleRemoveImage(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, protocol.RemoveImage(chi.URLParam(r, "iid")))
}

// handlePatchImage applies visible, opacity and colorFilter in that order,
// each as its own operation.
func (s *Server) handlePatchImage(w http.ResponseWriter, r *http.Request) {
	var patch imagePatch
	if !decodeBody(w, r, &patch) {
		return
	}
	id := chi.URLParam(r, "iid")

	var cmds []protocol.Command
	if patch.Visible != nil {
		cmds = append(cmds, protocol.SetImageVisibility(id, *patch.Visible))
	}
	if patch.Opacity != nil {
		cmds = append(cmds, protocol.SetImageOpacity(id, *patch.Opacity))
	}
	if patch.ColorFilter != nil {
		cmds = append(cmds, protocol.SetImageColorFilter(id, *patch.ColorFilter))
	}
	if len(cmds) == 0 {
		writeError(w, cverrors.New("E112").
			WithDetail("PATCH requires at least one of visible, opacity or colorFilter"))
		return
	}
	s.apply(w, r, cmds...)
}

func (s *Server) handleSetActiveImage(w http.ResponseWriter, r *http.Request) {
	var body activeImageBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.ID == nil {
		writeError(w, protocolError(protocol.SetActiveImage("").Validate()))
		return
	}
	s.apply(w, r, protocol.SetActiveImage(*body.ID))
}

func (s *Server) handleToggleMode(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, protocol.ToggleMode())
}

func (s *Server) handleToggleActive(w http.ResponseWriter, r *http.Request) {
	s.apply(w, r, protocol.ToggleActive())
}

// handleCommands applies a batch. Nothing is applied unless every command
// decodes.
func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	data, ok := readBody(w, r)
	if !ok {
		return
	}
	cmds, err := protocol.DecodeCommands(data)
	if err != nil {
		writeError(w, protocolError(err))
		return
	}
	s.apply(w, r, cmds...)
}

// apply validates cmds, runs them as one batch against the session's
// registry and responds with the snapshot the batch produced.
func (s *Server) apply(w http.ResponseWriter, r *http.Request, cmds ...protocol.Command) {
	for _, cmd := range cmds {
		if err := cmd.Validate(); err != nil {
			writeError(w, protocolError(err))
			return
		}
	}

	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	// The response is the state this request produced, not whatever a
	// concurrent writer left behind afterwards.
	results := make([]bool, len(cmds))
	snap, changed := sess.Registry().Batch(func(b *overlay.Batch) {
		for i, cmd := range cmds {
			results[i] = cmd.Apply(b)
		}
	})
	for i, cmd := range cmds {
		s.metrics.RecordOperation(string(cmd.Op), results[i])
	}

	w.Header().Set(ChangedHeader, strconv.FormatBool(changed))
	writeJSON(w, http.StatusOK, snap)
}

// session looks up the route's session, writing the error response if it
// does not exist.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, middleware.SessionParam))
	if err != nil {
		writeError(w, sessionError(err))
		return nil, false
	}
	return sess, true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, protocol.MaxMessageSize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, protocolError(protocol.ErrTooLarge))
			return nil, false
		}
		writeError(w, cverrors.New("E110").WithDetail(err.Error()))
		return nil, false
	}
	return data, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	data, ok := readBody(w, r)
	if !ok {
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil || dec.More() {
		detail := "trailing data after JSON body"
		if err != nil {
			detail = err.Error()
		}
		writeError(w, cverrors.New("E110").WithDetail(detail))
		return false
	}
	return true
}

// sessionError maps session manager errors to API errors.
func sessionError(err error) error {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return cverrors.New("E100")
	case errors.Is(err, session.ErrTooManySessionsFromIP):
		return cverrors.New("E101")
	case errors.Is(err, session.ErrMaxSessionsReached):
		return cverrors.New("E102")
	case errors.Is(err, session.ErrManagerStopped):
		return cverrors.New("E103")
	default:
		return cverrors.FromError(err, "E140")
	}
}

// protocolError maps command decode errors to API errors.
func protocolError(err error) error {
	code := "E110"
	switch {
	case errors.Is(err, protocol.ErrUnknownOp):
		code = "E111"
	case errors.Is(err, protocol.ErrMissingField):
		code = "E112"
	case errors.Is(err, protocol.ErrTooLarge):
		code = "E113"
	}
	return cverrors.New(code).WithDetail(err.Error()).Wrap(err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	cverrors.WriteHTTP(w, err)
}

// clientIP returns the host part of RemoteAddr. chi's RealIP middleware
// rewrites RemoteAddr when the server trusts its proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
