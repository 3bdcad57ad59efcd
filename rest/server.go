// Copyright 2026 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rest

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/net/netutil"

	"github.com/gdamore/fleetvisor"
)

// Fleet is what the handler needs to know about a supervisor.  The
// handler only ever reads from it.
type Fleet interface {
	Phase() fleetvisor.Phase
	RunID() string
	CreateTime() time.Time
	Status() []fleetvisor.RoleStatus
	RoleStatus(name string) (fleetvisor.RoleStatus, error)
	Handle(name string) (fleetvisor.Handle, error)
	Metrics() *fleetvisor.Metrics
}

// Longest a log request may wait for new output.
const maxLogWait = 5 * time.Minute

// Handler wraps a Fleet, adding http.Handler functionality.
type Handler struct {
	f    Fleet
	r    *mux.Router
	user string
	hash []byte
}

// SetAuth requires HTTP basic auth for the status API.  The password is
// given as a bcrypt hash.  The health endpoint itself is never protected,
// as orchestration has to be able to reach it.
func (h *Handler) SetAuth(user string, hash []byte) {
	h.user = user
	h.hash = hash
}

func (h *Handler) internalError(w http.ResponseWriter, e error) {
	http.Error(w, e.Error(), http.StatusInternalServerError)
}

func (h *Handler) writeJson(w http.ResponseWriter, v interface{}) {
	if b, e := json.Marshal(v); e != nil {
		h.internalError(w, e)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.Write(b)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, e *Error) {
	if b, err := json.Marshal(e); err != nil {
		h.internalError(w, err)
	} else {
		w.Header().Set("Content-Type", mimeJson)
		w.WriteHeader(e.Code)
		w.Write(b)
	}
}

func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.user == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(h.user)) != 1 ||
			bcrypt.CompareHashAndPassword(h.hash, []byte(pass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="fleetvisor"`)
			h.writeError(w, &Error{http.StatusUnauthorized, "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// health answers every path outside the status API.  The server is
// normally only started once the fleet is running, but an embedder may
// start it sooner, so the phase is still checked.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if p := h.f.Phase(); p != fleetvisor.PhaseRunning {
		http.Error(w, p.String(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	p := h.f.Phase()
	info := &FleetInfo{
		RunID:      h.f.RunID(),
		Phase:      p.String(),
		Healthy:    p == fleetvisor.PhaseRunning,
		CreateTime: h.f.CreateTime(),
	}
	for _, st := range h.f.Status() {
		info.Roles = append(info.Roles, roleInfo(st))
	}
	h.writeJson(w, info)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["role"]
	if st, e := h.f.RoleStatus(name); e != nil {
		h.writeError(w, &Error{http.StatusNotFound, "Role not found"})
	} else {
		h.writeJson(w, roleInfo(st))
	}
}

func (h *Handler) getLog(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["role"]
	if _, e := h.f.RoleStatus(name); e != nil {
		h.writeError(w, &Error{http.StatusNotFound, "Role not found"})
		return
	}
	var since int64
	var wait time.Duration
	if v := r.FormValue("since"); v != "" {
		n, e := strconv.ParseInt(v, 10, 64)
		if e != nil {
			h.writeError(w, &Error{http.StatusBadRequest, "Bad since"})
			return
		}
		since = n
	}
	if v := r.FormValue("wait"); v != "" {
		n, e := strconv.Atoi(v)
		if e != nil || n < 0 {
			h.writeError(w, &Error{http.StatusBadRequest, "Bad wait"})
			return
		}
		wait = time.Duration(n) * time.Second
		if wait > maxLogWait {
			wait = maxLogWait
		}
	}

	info := &LogInfo{Role: name, Last: since, Records: []fleetvisor.LogRecord{}}
	hd, e := h.f.Handle(name)
	if e != nil {
		// Not started yet, so there is no output.
		h.writeJson(w, info)
		return
	}
	log := hd.Log()
	if wait > 0 {
		log.WatchContext(r.Context(), since, wait)
	}
	if recs, last := log.GetRecords(since); recs != nil {
		info.Records = recs
		info.Last = last
	}
	w.Header().Set("Etag", strconv.FormatInt(info.Last, 10))
	h.writeJson(w, info)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	h.r.ServeHTTP(w, req)
}

func NewHandler(f Fleet) *Handler {
	r := mux.NewRouter()
	h := &Handler{f: f, r: r}

	api := r.PathPrefix(ApiPrefix).Subrouter()
	api.Use(h.authenticate)
	api.HandleFunc("/status", h.getStatus).Methods("GET")
	api.HandleFunc("/roles/{role}", h.getRole).Methods("GET")
	api.HandleFunc("/roles/{role}/log", h.getLog).Methods("GET")
	if reg := f.Metrics().Registry(); reg != nil {
		api.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")
	}

	r.PathPrefix("/").HandlerFunc(h.health).Methods("GET", "HEAD")
	return h
}

// Server is the health endpoint.  Serving is the main blocking call of
// the daemon.
type Server struct {
	Addr     string
	Handler  http.Handler
	MaxConns int // 0 means no limit
	Logger   *logrus.Entry
}

// DefaultMaxConns bounds concurrent health connections.
const DefaultMaxConns = 64

const shutdownTime = 5 * time.Second

// NewServer returns a Server on addr for the fleet.
func NewServer(addr string, h http.Handler) *Server {
	return &Server{
		Addr:     addr,
		Handler:  h,
		MaxConns: DefaultMaxConns,
		Logger:   logrus.NewEntry(logrus.StandardLogger()),
	}
}

// Serve listens on Addr and serves until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	l, e := net.Listen("tcp", s.Addr)
	if e != nil {
		return e
	}
	return s.ServeListener(ctx, l)
}

// ServeListener serves on l until ctx is done, then shuts down
// gracefully.  It returns nil after a clean shutdown.
func (s *Server) ServeListener(ctx context.Context, l net.Listener) error {
	if s.MaxConns > 0 {
		l = netutil.LimitListener(l, s.MaxConns)
	}
	srv := &http.Server{
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Requests see ctx, so long polls on logs end with us.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	if s.Logger != nil {
		s.Logger.WithField("addr", l.Addr().String()).Info("Health endpoint listening")
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(l)
	}()
	select {
	case e := <-errc:
		return e
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTime)
	defer cancel()
	e := srv.Shutdown(sctx)
	<-errc
	return e
}
