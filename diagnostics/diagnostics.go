// This file is part of ipiis-go, an identity-addressed peer-to-peer RPC
// substrate in Golang.
//
// Package diagnostics exposes a read-only HTTP admin surface over a
// RoutingTable: the current routing entries and basic server identity,
// for operators inspecting a running node. Grounded on the teacher's
// JSON-RPC router (src/gnunet/service/rpc.go): a gorilla/mux Router bound
// to an *http.Server, started and shut down against a context the same
// way StartRPC does. Unlike the teacher's router, every route here is
// read-only — there is no remote-write surface, since writes already go
// through the signed-envelope RPCs in package framing.
package diagnostics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bfix/gospel/logger"
	"github.com/gorilla/mux"

	"github.com/ipiis/ipiis-go/account"
	"github.com/ipiis/ipiis-go/routing"
)

// Server is a read-only HTTP admin surface bound to one account's
// RoutingTable.
type Server struct {
	self  account.AccountRef
	table *routing.RoutingTable
	http  *http.Server
}

// New builds a diagnostics Server listening on addr (a plain "host:port",
// not one of the identity-bound transport specs package transport uses:
// this surface is local-operator tooling, not a peer-addressable RPC
// endpoint).
func New(self account.AccountRef, table *routing.RoutingTable, addr string) *Server {
	s := &Server{self: self, table: table}
	router := mux.NewRouter()
	router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	router.HandleFunc("/routing", s.handleRouting).Methods(http.MethodGet)
	s.http = &http.Server{
		Handler:      router,
		Addr:         addr,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

// Run starts the HTTP listener and shuts it down cleanly when ctx is
// canceled, mirroring the teacher's StartRPC lifecycle.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf(logger.WARN, "[diagnostics] listen failed: %s\n", err)
		}
	}()
	<-ctx.Done()
	return s.http.Shutdown(context.Background())
}

type statsResponse struct {
	Self    string `json:"self"`
	Entries int    `json:"entries"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	keys, err := s.table.Keys()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, statsResponse{Self: s.self.String(), Entries: len(keys)})
}

type routingEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) handleRouting(w http.ResponseWriter, r *http.Request) {
	keys, err := s.table.Keys()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	entries := make([]routingEntry, 0, len(keys))
	for _, key := range keys {
		value, err := s.table.RawGet(key)
		if err != nil {
			logger.Printf(logger.WARN, "[diagnostics] read %s: %s\n", key, err)
			continue
		}
		entries = append(entries, routingEntry{Key: key, Value: value})
	}
	writeJSON(w, entries)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Printf(logger.WARN, "[diagnostics] encode response: %s\n", err)
	}
}
