// Package api serves the contact monitor over HTTP: the two services, the
// results and markers topics, the joint state input and read-only views of
// the environment and the contact history.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/contact.monitor/internal/db"
	"github.com/banshee-data/contact.monitor/internal/environment"
	"github.com/banshee-data/contact.monitor/internal/jointfeed"
	"github.com/banshee-data/contact.monitor/internal/monitor"
	"github.com/banshee-data/contact.monitor/internal/monitoring"
	"github.com/banshee-data/contact.monitor/internal/serialmux"
	"github.com/banshee-data/contact.monitor/internal/timeutil"
	"github.com/banshee-data/contact.monitor/internal/topic"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Service is the part of the monitor the HTTP surface calls into.
type Service interface {
	Err() error
	Revision() int
	ModifyEnvironment(monitor.ModifyEnvironmentRequest) monitor.ModifyEnvironmentResponse
	ComputeContactResultVector(monitor.ComputeContactResultVectorRequest) monitor.ComputeContactResultVectorResponse
}

// Describer reports the environment's current scene.
type Describer interface {
	Describe() environment.Description
}

// Options wires a Server. Markers, History and Serial may be nil.
type Options struct {
	Service Service
	Names   monitor.Names
	Env     Describer
	Results *topic.Latched[monitor.ContactResultVector]
	Markers *topic.Latched[monitor.MarkerArray]
	Joints  jointfeed.Sink
	History *db.DB
	Serial  serialmux.SerialMuxInterface
	// SerialPort is the configured controller port, excluded from discovery.
	SerialPort string
	Clock      timeutil.Clock
}

type Server struct {
	opts Options
}

func NewServer(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Server{opts: opts}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the routes. Service and topic routes live under the
// monitor's namespace; everything else under /api/.
func (s *Server) ServeMux() *http.ServeMux {
	n := s.opts.Names
	mux := http.NewServeMux()
	mux.HandleFunc(n.ModifyEnvironment, s.handleModifyEnvironment)
	mux.HandleFunc(n.ComputeContacts, s.handleComputeContacts)
	mux.HandleFunc(n.ContactResults, latchedHandler(s.opts.Results))
	mux.HandleFunc(n.ContactMarkers, latchedHandler(s.opts.Markers))
	if n.JointStates != "" {
		mux.HandleFunc(n.JointStates, s.handleJointState)
	}

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/environment", s.handleEnvironment)
	mux.HandleFunc("/api/contacts/history", s.handleHistory)
	mux.HandleFunc("/api/contacts/history/", s.handleHistoryCycle)
	mux.HandleFunc("/api/modifications", s.handleModifications)
	mux.HandleFunc("/api/serial/devices", s.handleSerialDevices)
	mux.HandleFunc("/api/serial/test", s.handleSerialTest)
	mux.HandleFunc("/command", s.sendCommandHandler)
	mux.Handle("/metrics", monitoring.MetricsHandler())
	return mux
}
