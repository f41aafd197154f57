package rpc

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

// Backend is what the RPC server delegates incoming calls to: whatever
// local component actually prepares a transaction, applies an
// activate/deactivate, or moves the primary role on this node.
type Backend interface {
	PrepareTransaction(txnID string, nodesAdded, nodesRemoved []string) error
	UpdateRevisionAndManager(txnID string) error
	ApplyNewConfig(txnID string) error
	CommitTransaction(txnID string) error
	RollbackTransaction(txnID string) error
	Activate(txnID, node string) error
	Deactivate(txnID, node string) error
	MovePrimary(txnID, node string) error
}

// Server mounts the RPC endpoints peers call into a mux.Router.
type Server struct {
	backend Backend
}

func NewServer(backend Backend) *Server {
	return &Server{backend: backend}
}

// Register mounts every RPC endpoint onto r.
func (s *Server) Register(r *mux.Router) {
	r.HandleFunc("/rpc/txn/start", s.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/rpc/txn/update-revision", s.handleUpdateRevision).Methods(http.MethodPost)
	r.HandleFunc("/rpc/txn/broadcast", s.handleBroadcast).Methods(http.MethodPost)
	r.HandleFunc("/rpc/txn/commit", s.handleCommit).Methods(http.MethodPost)
	r.HandleFunc("/rpc/txn/rollback", s.handleRollback).Methods(http.MethodPost)
	r.HandleFunc("/rpc/node/activate", s.handleActivate).Methods(http.MethodPost)
	r.HandleFunc("/rpc/node/deactivate", s.handleDeactivate).Methods(http.MethodPost)
	r.HandleFunc("/rpc/node/move-primary", s.handleMovePrimary).Methods(http.MethodPost)
}

func writeErr(w http.ResponseWriter, err error) {
	log.Printf("rpc server: %v", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startTxnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.backend.PrepareTransaction(req.TxnID, req.NodesAdded, req.NodesRemoved); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleUpdateRevision(w http.ResponseWriter, r *http.Request) {
	var req txnIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.backend.UpdateRevisionAndManager(req.TxnID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.backend.ApplyNewConfig(req.TxnID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req txnIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.backend.CommitTransaction(req.TxnID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	var req txnIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.backend.RollbackTransaction(req.TxnID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req nodeOpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.backend.Activate(req.TxnID, req.Node); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	var req nodeOpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.backend.Deactivate(req.TxnID, req.Node); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleMovePrimary(w http.ResponseWriter, r *http.Request) {
	var req nodeOpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.backend.MovePrimary(req.TxnID, req.Node); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
