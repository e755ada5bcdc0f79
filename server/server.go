package server

import (
	"fmt"
	"net/http"

	"connectrpc.com/connect"
)

// DefaultStepLimit bounds a single Run call so a submitted infinite loop
// cannot pin the server.
const DefaultStepLimit = 10_000_000

type Option func(*Server)

// WithStepLimit overrides the per-run step budget. Zero disables the limit.
func WithStepLimit(n int) Option {
	return func(s *Server) { s.stepLimit = n }
}

// Server exposes the CheckerService over Connect RPC. Handlers accept the
// Connect protocol as well as plain HTTP POSTs with JSON bodies, so curl
// against the procedure paths works directly.
type Server struct {
	mux       *http.ServeMux
	stepLimit int
}

func New(opts ...Option) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		stepLimit: DefaultStepLimit,
	}
	for _, opt := range opts {
		opt(s)
	}

	svc := NewCheckerService(s.stepLimit)
	codec := connect.WithCodec(jsonCodec{})
	s.mux.Handle(ProcedureCompile, connect.NewUnaryHandler(ProcedureCompile, svc.Compile, codec))
	s.mux.Handle(ProcedureValidate, connect.NewUnaryHandler(ProcedureValidate, svc.Validate, codec))
	s.mux.Handle(ProcedureRun, connect.NewUnaryHandler(ProcedureRun, svc.Run, codec))
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) ListenAndServe(port int) error {
	addr := fmt.Sprintf(":%d", port)
	log.Noticef("checker service listening on %s", addr)
	return http.ListenAndServe(addr, s.mux)
}
