package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"connectrpc.com/connect"

	"github.com/chazu/machina/problem"
	"github.com/chazu/machina/vm"
)

func bg() context.Context {
	return context.Background()
}

func connectReq[T any](msg *T) *connect.Request[T] {
	return connect.NewRequest(msg)
}

func mailRoom() problem.Definition {
	return problem.Definition{
		IOs: []problem.IODefinition{
			{Input: []vm.Value{vm.Int(1), vm.Int(9)}, Output: []vm.Value{vm.Int(1), vm.Int(9)}},
		},
		Commands: []string{"INBOX", "OUTBOX", "JUMP"},
	}
}

const mailRoomSource = "start:\n    INBOX\n    OUTBOX\n    JUMP start\n"

// ---------------------------------------------------------------------------
// Compile
// ---------------------------------------------------------------------------

func TestCompile_Listing(t *testing.T) {
	svc := NewCheckerService(0)

	resp, err := svc.Compile(bg(), connectReq(&CompileRequest{Source: mailRoomSource}))
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	if !resp.Msg.Success {
		t.Fatalf("Compile was not successful: %s", resp.Msg.ErrorMessage)
	}
	if resp.Msg.Size != 3 {
		t.Errorf("size = %d, want 3", resp.Msg.Size)
	}
	if len(resp.Msg.Listing) != 3 || resp.Msg.Listing[2] != "JUMP start" {
		t.Errorf("listing = %v, want [INBOX OUTBOX JUMP start]", resp.Msg.Listing)
	}
}

func TestCompile_IllegalSource(t *testing.T) {
	svc := NewCheckerService(0)

	resp, err := svc.Compile(bg(), connectReq(&CompileRequest{Source: "WOBBLE 3"}))
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	if resp.Msg.Success {
		t.Fatal("Compile should not succeed on an illegal line")
	}
	if !strings.Contains(resp.Msg.ErrorMessage, "illegal line") {
		t.Errorf("error message = %q, want an illegal line report", resp.Msg.ErrorMessage)
	}
}

func TestCompile_EmptySource(t *testing.T) {
	svc := NewCheckerService(0)

	_, err := svc.Compile(bg(), connectReq(&CompileRequest{}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("error code = %v, want invalid_argument", connect.CodeOf(err))
	}
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestValidate_AllowedProgram(t *testing.T) {
	svc := NewCheckerService(0)

	resp, err := svc.Validate(bg(), connectReq(&ValidateRequest{
		Source:  mailRoomSource,
		Problem: mailRoom(),
	}))
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if !resp.Msg.Success {
		t.Errorf("Validate was not successful: %s", resp.Msg.ErrorMessage)
	}
}

func TestValidate_DisallowedInstruction(t *testing.T) {
	svc := NewCheckerService(0)

	def := mailRoom()
	def.Commands = []string{"INBOX", "OUTBOX"}
	resp, err := svc.Validate(bg(), connectReq(&ValidateRequest{
		Source:  mailRoomSource,
		Problem: def,
	}))
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if resp.Msg.Success {
		t.Fatal("Validate should fail for a disallowed instruction")
	}
	if !strings.Contains(resp.Msg.ErrorMessage, "JUMP") {
		t.Errorf("error message = %q, want a JUMP availability report", resp.Msg.ErrorMessage)
	}
}

func TestValidate_BadProblem(t *testing.T) {
	svc := NewCheckerService(0)

	def := mailRoom()
	def.Commands = append(def.Commands, "TELEPORT")
	resp, err := svc.Validate(bg(), connectReq(&ValidateRequest{
		Source:  mailRoomSource,
		Problem: def,
	}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("error code = %v, want invalid_argument", connect.CodeOf(err))
	}
	if resp != nil {
		t.Error("Validate should not return a response alongside an error")
	}
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

func TestRunHandler_Score(t *testing.T) {
	svc := NewCheckerService(0)

	resp, err := svc.Run(bg(), connectReq(&RunRequest{
		Source:  mailRoomSource,
		Problem: mailRoom(),
	}))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !resp.Msg.Success {
		t.Fatalf("Run was not successful: %s", resp.Msg.ErrorMessage)
	}
	if resp.Msg.Score == nil {
		t.Fatal("Run should return a score")
	}
	if resp.Msg.Score.Size != 3 {
		t.Errorf("size = %d, want 3", resp.Msg.Score.Size)
	}
	if resp.Msg.Score.StepsMax != 5 {
		t.Errorf("steps max = %d, want 5", resp.Msg.Score.StepsMax)
	}
}

func TestRunHandler_IncorrectOutput(t *testing.T) {
	svc := NewCheckerService(0)

	def := mailRoom()
	def.IOs[0].Output = []vm.Value{vm.Int(1), vm.Int(8)}
	resp, err := svc.Run(bg(), connectReq(&RunRequest{
		Source:  mailRoomSource,
		Problem: def,
	}))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if resp.Msg.Success {
		t.Fatal("Run should fail on incorrect output")
	}
	if !strings.Contains(resp.Msg.ErrorMessage, "incorrect output") {
		t.Errorf("error message = %q, want an incorrect output report", resp.Msg.ErrorMessage)
	}
}

func TestRunHandler_StepLimit(t *testing.T) {
	svc := NewCheckerService(50)

	def := problem.Definition{
		IOs:      []problem.IODefinition{{}},
		Commands: []string{"JUMP"},
	}
	resp, err := svc.Run(bg(), connectReq(&RunRequest{
		Source:  "spin:\n    JUMP spin\n",
		Problem: def,
	}))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if resp.Msg.Success {
		t.Fatal("Run should fail on the step limit")
	}
	if !strings.Contains(resp.Msg.ErrorMessage, "step limit") {
		t.Errorf("error message = %q, want a step limit report", resp.Msg.ErrorMessage)
	}
}

func TestRunHandler_BadProblem(t *testing.T) {
	svc := NewCheckerService(0)

	def := mailRoom()
	def.Commands = append(def.Commands, "TELEPORT")
	resp, err := svc.Run(bg(), connectReq(&RunRequest{
		Source:  mailRoomSource,
		Problem: def,
	}))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("error code = %v, want invalid_argument", connect.CodeOf(err))
	}
	if resp != nil {
		t.Error("Run should not return a response alongside an error")
	}
}

// ---------------------------------------------------------------------------
// HTTP surface
// ---------------------------------------------------------------------------

func TestServer_PlainJSONPost(t *testing.T) {
	ts := httptest.NewServer(New().Handler())
	defer ts.Close()

	body, err := json.Marshal(CompileRequest{Source: mailRoomSource})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(ts.URL+ProcedureCompile, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST returned error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var decoded CompileResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !decoded.Success || decoded.Size != 3 {
		t.Errorf("response = %+v, want success with size 3", decoded)
	}
}
