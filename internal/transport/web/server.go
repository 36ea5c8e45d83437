// Package web exposes the evaluation service over HTTP and a websocket
// console. Request bodies are validated against the JSON schemas in
// schemas/ before they reach the service.
package web

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"scriptvault.io/internal/eval"
	"scriptvault.io/internal/protocol"
)

type Server struct {
	svc           *eval.Service
	log           *log.Logger
	rollbackToken string

	evalSchema     *jsonschema.Schema
	continueSchema *jsonschema.Schema
	rollbackSchema *jsonschema.Schema

	upgrader websocket.Upgrader
}

// NewServer compiles the request schemas from schemaDir and wires the
// service behind the HTTP surface.
func NewServer(svc *eval.Service, schemaDir, rollbackToken string, logger *log.Logger) (*Server, error) {
	s := &Server{
		svc:           svc,
		log:           logger,
		rollbackToken: rollbackToken,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	for _, sc := range []struct {
		name string
		dst  **jsonschema.Schema
	}{
		{"eval.schema.json", &s.evalSchema},
		{"continue.schema.json", &s.continueSchema},
		{"rollback.schema.json", &s.rollbackSchema},
	} {
		compiled, err := jsonschema.Compile(filepath.Join(schemaDir, sc.name))
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", sc.name, err)
		}
		*sc.dst = compiled
	}
	return s, nil
}

// Register mounts all endpoints on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/eval", s.handleEval)
	mux.HandleFunc("/v1/continue", s.handleContinue)
	mux.HandleFunc("/v1/history", s.handleHistory)
	mux.HandleFunc("/v1/rollback", s.handleRollback)
	mux.HandleFunc("/v1/ws", s.handleWS)
}

func (s *Server) decodeBody(rw http.ResponseWriter, r *http.Request, schema *jsonschema.Schema, dst any) bool {
	body := http.MaxBytesReader(rw, r.Body, 1<<20)
	raw := json.RawMessage{}
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		writeError(rw, http.StatusBadRequest, protocol.NewError(protocol.ErrValidation, "malformed JSON body"))
		return false
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		writeError(rw, http.StatusBadRequest, protocol.NewError(protocol.ErrValidation, "malformed JSON body"))
		return false
	}
	if err := schema.Validate(generic); err != nil {
		writeError(rw, http.StatusBadRequest, protocol.NewError(protocol.ErrValidation, "request does not match schema"))
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		writeError(rw, http.StatusBadRequest, protocol.NewError(protocol.ErrValidation, "malformed JSON body"))
		return false
	}
	return true
}

func (s *Server) handleEval(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req protocol.EvalRequest
	if !s.decodeBody(rw, r, s.evalSchema, &req) {
		return
	}
	result, err := s.svc.Evaluate(req.Code, protocol.EvalContext{Actor: req.Actor, Origin: req.Origin})
	if err != nil {
		writeError(rw, statusFor(err), err)
		return
	}
	writeJSON(rw, http.StatusOK, protocol.EvalResponse{Result: result})
}

func (s *Server) handleContinue(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req protocol.ContinueRequest
	if !s.decodeBody(rw, r, s.continueSchema, &req) {
		return
	}
	result, err := s.svc.ContinueOutput(protocol.EvalContext{Actor: req.Actor, Origin: req.Origin})
	if err != nil {
		writeError(rw, statusFor(err), err)
		return
	}
	writeJSON(rw, http.StatusOK, protocol.EvalResponse{Result: result})
}

func (s *Server) handleHistory(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 200 {
			writeError(rw, http.StatusBadRequest, protocol.NewError(protocol.ErrValidation, "limit must be 1..200"))
			return
		}
		limit = n
	}
	commits, err := s.svc.History(limit)
	if err != nil {
		writeError(rw, statusFor(err), err)
		return
	}
	writeJSON(rw, http.StatusOK, protocol.HistoryResponse{Commits: commits})
}

func (s *Server) handleRollback(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorized(r) {
		writeError(rw, http.StatusForbidden, protocol.NewError(protocol.ErrValidation, "rollback requires a valid bearer token"))
		return
	}
	var req protocol.RollbackRequest
	if !s.decodeBody(rw, r, s.rollbackSchema, &req) {
		return
	}
	info, err := s.svc.Rollback(req.Ref, protocol.EvalContext{Actor: req.Actor, Privileged: true})
	if err != nil {
		writeError(rw, statusFor(err), err)
		return
	}
	writeJSON(rw, http.StatusOK, protocol.HistoryResponse{Commits: []protocol.CommitInfo{info}})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.rollbackToken == "" {
		return false
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return false
	}
	token := strings.TrimSpace(auth[len(prefix):])
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.rollbackToken)) == 1
}

// handleWS is the interactive console: one request at a time per
// connection, request types mirroring the HTTP endpoints.
func (s *Server) handleWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Minute))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req protocol.WSRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			s.writeWS(conn, protocol.WSResponse{Type: "error", ErrorCode: protocol.ErrValidation, Error: "malformed request"})
			continue
		}
		s.writeWS(conn, s.dispatchWS(req))
	}
}

func (s *Server) dispatchWS(req protocol.WSRequest) protocol.WSResponse {
	ectx := protocol.EvalContext{Actor: req.Actor, Origin: req.Origin}
	switch req.Type {
	case "eval":
		result, err := s.svc.Evaluate(req.Code, ectx)
		if err != nil {
			return wsError(req.Type, err)
		}
		return protocol.WSResponse{Type: req.Type, Result: &result}
	case "continue":
		result, err := s.svc.ContinueOutput(ectx)
		if err != nil {
			return wsError(req.Type, err)
		}
		return protocol.WSResponse{Type: req.Type, Result: &result}
	case "history":
		commits, err := s.svc.History(req.Limit)
		if err != nil {
			return wsError(req.Type, err)
		}
		return protocol.WSResponse{Type: req.Type, Commits: commits}
	default:
		return protocol.WSResponse{Type: "error", ErrorCode: protocol.ErrValidation,
			Error: "unknown request type " + strconv.Quote(req.Type)}
	}
}

func wsError(typ string, err error) protocol.WSResponse {
	resp := protocol.WSResponse{Type: typ, ErrorCode: protocol.CodeOf(err), Error: err.Error()}
	var perr *protocol.Error
	if errors.As(err, &perr) {
		resp.Error = perr.Message
	}
	return resp
}

func (s *Server) writeWS(conn *websocket.Conn, v protocol.WSResponse) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		s.log.Printf("ws write: %v", err)
	}
}

func statusFor(err error) int {
	switch protocol.CodeOf(err) {
	case protocol.ErrValidation, protocol.ErrLimiter:
		return http.StatusBadRequest
	case protocol.ErrTimeout:
		return http.StatusRequestTimeout
	case protocol.ErrCrash, protocol.ErrRestart, protocol.ErrStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(rw http.ResponseWriter, status int, err error) {
	msg := err.Error()
	var perr *protocol.Error
	if errors.As(err, &perr) {
		msg = perr.Message
	}
	writeJSON(rw, status, protocol.EvalResponse{ErrorCode: protocol.CodeOf(err), Error: msg})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
