package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/TorporOverload/DocChainValidator/internal/p2p"
)

// statusServer exposes read-only JSON diagnostics over HTTP: health,
// known/connected peers, and chain height. It carries no write endpoints —
// submission and verification stay CLI-only operations.
type statusServer struct {
	node *p2p.Node
	srv  *http.Server
	log  *logrus.Entry
}

func newStatusServer(addr string, node *p2p.Node) *statusServer {
	s := &statusServer{node: node, log: logrus.WithField("component", "httpapi")}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/peers", s.handlePeers)
	r.Get("/chain/height", s.handleChainHeight)

	s.srv = &http.Server{Addr: addr, Handler: r}
	return s
}

func (s *statusServer) Start() error {
	s.log.Infof("status api listening on %s", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *statusServer) Close() error {
	return s.srv.Close()
}

func (s *statusServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *statusServer) handlePeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.Peers())
}

func (s *statusServer) handleChainHeight(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.Stats())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}
