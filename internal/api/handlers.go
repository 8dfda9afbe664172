package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/contact.monitor/internal/db"
	"github.com/banshee-data/contact.monitor/internal/httputil"
	"github.com/banshee-data/contact.monitor/internal/jointfeed"
	"github.com/banshee-data/contact.monitor/internal/monitor"
	"github.com/banshee-data/contact.monitor/internal/topic"
	"github.com/banshee-data/contact.monitor/internal/version"
)

const (
	maxBodyBytes      = 1 << 20
	defaultHistoryMin = 60
	defaultLimit      = 500
	maxLimit          = 5000
)

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// inert reports whether the monitor failed setup, answering 503 if so.
func (s *Server) inert(w http.ResponseWriter) bool {
	if err := s.opts.Service.Err(); err != nil {
		httputil.ServiceUnavailable(w, fmt.Sprintf("contact monitor unavailable: %v", err))
		return true
	}
	return false
}

func (s *Server) handleModifyEnvironment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req monitor.ModifyEnvironmentRequest
	if !decodeJSON(w, r, &req) || s.inert(w) {
		return
	}
	httputil.WriteJSONOK(w, s.opts.Service.ModifyEnvironment(req))
}

func (s *Server) handleComputeContacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req monitor.ComputeContactResultVectorRequest
	if !decodeJSON(w, r, &req) || s.inert(w) {
		return
	}
	httputil.WriteJSONOK(w, s.opts.Service.ComputeContactResultVector(req))
}

// latchedHandler serves a topic's latched value, or streams it as
// Server-Sent Events when asked with ?stream=1 or Accept: text/event-stream.
func latchedHandler[T any](t *topic.Latched[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if t == nil {
			httputil.NotFound(w, "topic is not published")
			return
		}
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		if r.URL.Query().Get("stream") != "" || strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
			topic.SSEHandler(t)(w, r)
			return
		}
		v, ok := t.Last()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		httputil.WriteJSONOK(w, v)
	}
}

// handleJointState accepts one sample as JSON or, with a text/plain body,
// as a controller line.
func (s *Server) handleJointState(w http.ResponseWriter, r *http.Request) {
	if s.opts.Joints == nil {
		httputil.NotFound(w, "joint state input is disabled")
		return
	}
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	now := s.opts.Clock.Now()
	var js monitor.JointState
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "text/plain" {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if js, err = jointfeed.ParseLine(strings.TrimSpace(string(body)), now); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	} else {
		if !decodeJSON(w, r, &js) {
			return
		}
		if len(js.Names) != len(js.Positions) {
			httputil.BadRequest(w, fmt.Sprintf("joint state has %d names and %d positions", len(js.Names), len(js.Positions)))
			return
		}
		if js.Stamp.IsZero() {
			js.Stamp = now
		}
	}

	s.opts.Joints.Publish(js)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "stamp": js.Stamp})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	status := map[string]any{
		"healthy":    true,
		"revision":   s.opts.Service.Revision(),
		"names":      s.opts.Names,
		"history":    s.opts.History != nil,
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	}
	if err := s.opts.Service.Err(); err != nil {
		status["healthy"] = false
		status["error"] = err.Error()
	}
	httputil.WriteJSONOK(w, status)
}

func (s *Server) handleEnvironment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.opts.Env == nil {
		httputil.NotFound(w, "no environment loaded")
		return
	}
	httputil.WriteJSONOK(w, s.opts.Env.Describe())
}

// positiveParam reads a positive integer query parameter capped at max.
func positiveParam(r *http.Request, name string, def, max int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid '%s' parameter", name)
	}
	return min(n, max), nil
}

func (s *Server) historyEnabled(w http.ResponseWriter, r *http.Request) bool {
	if s.opts.History == nil {
		httputil.NotFound(w, "contact history is disabled")
		return false
	}
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return false
	}
	return true
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !s.historyEnabled(w, r) {
		return
	}
	minutes, err := positiveParam(r, "minutes", defaultHistoryMin, 7*24*60)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	limit, err := positiveParam(r, "limit", defaultLimit, maxLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	since := s.opts.Clock.Now().Add(-time.Duration(minutes) * time.Minute)
	cycles, err := s.opts.History.Cycles(since, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve history: %v", err))
		return
	}
	httputil.WriteJSONOK(w, cycles)
}

func (s *Server) handleHistoryCycle(w http.ResponseWriter, r *http.Request) {
	if !s.historyEnabled(w, r) {
		return
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/api/contacts/history/"), 10, 64)
	if err != nil {
		httputil.BadRequest(w, "invalid cycle id")
		return
	}
	rows, err := s.opts.History.CycleContacts(id)
	if errors.Is(err, db.ErrCycleNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve contacts: %v", err))
		return
	}
	httputil.WriteJSONOK(w, rows)
}

func (s *Server) handleModifications(w http.ResponseWriter, r *http.Request) {
	if !s.historyEnabled(w, r) {
		return
	}
	limit, err := positiveParam(r, "limit", defaultLimit, maxLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	mods, err := s.opts.History.Modifications(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve modifications: %v", err))
		return
	}
	httputil.WriteJSONOK(w, mods)
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.opts.Serial == nil {
		http.Error(w, "Serial controller is disabled", http.StatusNotFound)
		return
	}

	command := r.FormValue("command")
	if err := s.opts.Serial.SendCommand(command); err != nil {
		http.Error(w, "Failed to send command", http.StatusInternalServerError)
		return
	}
	io.WriteString(w, "Command sent successfully")
}
