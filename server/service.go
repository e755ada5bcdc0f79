package server

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/machina/compiler"
	"github.com/chazu/machina/problem"
	"github.com/chazu/machina/vm"
)

var log = commonlog.GetLogger("machina.server")

// Procedure paths for the checker service. Clients post JSON bodies to
// these paths with Content-Type application/json.
const (
	ProcedureCompile  = "/machina.v1.CheckerService/Compile"
	ProcedureValidate = "/machina.v1.CheckerService/Validate"
	ProcedureRun      = "/machina.v1.CheckerService/Run"
)

type CompileRequest struct {
	Source string `json:"source"`
}

type CompileResponse struct {
	Success      bool     `json:"success"`
	ErrorMessage string   `json:"error_message,omitempty"`
	Size         int      `json:"size,omitempty"`
	Listing      []string `json:"listing,omitempty"`
}

type ValidateRequest struct {
	Source  string             `json:"source"`
	Problem problem.Definition `json:"problem"`
}

type ValidateResponse struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type RunRequest struct {
	Source  string             `json:"source"`
	Problem problem.Definition `json:"problem"`
}

type ScoreResult struct {
	Size     int     `json:"size"`
	StepsMin int     `json:"steps_min"`
	StepsMax int     `json:"steps_max"`
	StepsAvg float64 `json:"steps_avg"`
}

type RunResponse struct {
	Success      bool         `json:"success"`
	ErrorMessage string       `json:"error_message,omitempty"`
	Score        *ScoreResult `json:"score,omitempty"`
}

// CheckerService compiles, validates and runs submitted programs against
// problem definitions. Programs and problems are immutable once built, so
// the service holds no per-request state.
type CheckerService struct {
	stepLimit int
}

func NewCheckerService(stepLimit int) *CheckerService {
	return &CheckerService{stepLimit: stepLimit}
}

func (s *CheckerService) Compile(ctx context.Context, req *connect.Request[CompileRequest]) (*connect.Response[CompileResponse], error) {
	if req.Msg.Source == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("source is required"))
	}

	prog, err := compiler.Compile(req.Msg.Source)
	if err != nil {
		return connect.NewResponse(&CompileResponse{
			Success:      false,
			ErrorMessage: err.Error(),
		}), nil
	}

	listing := make([]string, 0, prog.Size())
	for _, in := range prog.Instructions() {
		listing = append(listing, in.String())
	}
	return connect.NewResponse(&CompileResponse{
		Success: true,
		Size:    prog.Size(),
		Listing: listing,
	}), nil
}

func (s *CheckerService) Validate(ctx context.Context, req *connect.Request[ValidateRequest]) (*connect.Response[ValidateResponse], error) {
	prog, prob, failed := s.prepare(req.Msg.Source, req.Msg.Problem)
	if failed != nil {
		if failed.err != nil {
			return nil, failed.err
		}
		return connect.NewResponse(&ValidateResponse{
			Success:      false,
			ErrorMessage: failed.ErrorMessage,
		}), nil
	}

	if err := prog.Validate(prob); err != nil {
		return connect.NewResponse(&ValidateResponse{Success: false, ErrorMessage: err.Error()}), nil
	}
	return connect.NewResponse(&ValidateResponse{Success: true}), nil
}

func (s *CheckerService) Run(ctx context.Context, req *connect.Request[RunRequest]) (*connect.Response[RunResponse], error) {
	prog, prob, failed := s.prepare(req.Msg.Source, req.Msg.Problem)
	if failed != nil {
		if failed.err != nil {
			return nil, failed.err
		}
		return connect.NewResponse(&RunResponse{
			Success:      false,
			ErrorMessage: failed.ErrorMessage,
		}), nil
	}

	if err := prog.Validate(prob); err != nil {
		return connect.NewResponse(&RunResponse{Success: false, ErrorMessage: err.Error()}), nil
	}

	var opts []vm.RunOption
	if s.stepLimit > 0 {
		opts = append(opts, vm.WithStepLimit(s.stepLimit))
	}
	score, err := prog.Run(prob, opts...)
	if err != nil {
		return connect.NewResponse(&RunResponse{Success: false, ErrorMessage: err.Error()}), nil
	}

	log.Debugf("run succeeded: %s", score)
	return connect.NewResponse(&RunResponse{
		Success: true,
		Score: &ScoreResult{
			Size:     score.Size,
			StepsMin: score.StepsMin,
			StepsMax: score.StepsMax,
			StepsAvg: score.StepsAvg,
		},
	}), nil
}

// failure carries an error message and, when the request itself is
// malformed, a Connect error to return alongside it.
type failure struct {
	ErrorMessage string
	err          error
}

func (s *CheckerService) prepare(source string, def problem.Definition) (*vm.Program, *vm.Problem, *failure) {
	if source == "" {
		err := connect.NewError(connect.CodeInvalidArgument, errors.New("source is required"))
		return nil, nil, &failure{ErrorMessage: err.Error(), err: err}
	}
	prob, err := def.Problem()
	if err != nil {
		cerr := connect.NewError(connect.CodeInvalidArgument, err)
		return nil, nil, &failure{ErrorMessage: cerr.Error(), err: cerr}
	}
	prog, err := compiler.Compile(source)
	if err != nil {
		return nil, prob, &failure{ErrorMessage: err.Error()}
	}
	return prog, prob, nil
}
