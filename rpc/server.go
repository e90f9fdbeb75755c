package rpc

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/cors"
)

// Server is a JSON-RPC HTTP server that dispatches requests to the EthAPI.
type Server struct {
	api         *EthAPI
	mux         *http.ServeMux
	corsOrigins []string
}

// NewServer creates a new JSON-RPC server. CORS is disabled (same-origin
// only) until SetCORSOrigins is called.
func NewServer(backend Backend) *Server {
	s := &Server{
		api: NewEthAPI(backend),
		mux: http.NewServeMux(),
	}
	s.mux.HandleFunc("/", s.handleRPC)
	return s
}

// SetCORSOrigins configures the set of origins allowed to call the RPC
// server from a browser. Passing ["*"] allows any origin.
func (s *Server) SetCORSOrigins(origins []string) {
	s.corsOrigins = origins
}

// Handler returns the HTTP handler for the server, wrapped in CORS handling
// when SetCORSOrigins has configured any allowed origins.
func (s *Server) Handler() http.Handler {
	if len(s.corsOrigins) == 0 {
		return s.mux
	}
	return cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(s.mux)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, nil, ErrCodeParse, "failed to read request body")
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, nil, ErrCodeParse, "invalid JSON")
		return
	}

	resp := s.api.HandleRequest(&req)
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	resp := &Response{
		JSONRPC: "2.0",
		Error:   &RPCError{Code: code, Message: message},
		ID:      id,
	}
	writeJSON(w, resp)
}
