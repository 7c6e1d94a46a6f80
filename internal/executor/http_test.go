package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/altwalker/gowalker/internal/planner"
)

func testExecutor(t *testing.T, handler http.Handler) *HTTP {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTP(srv.URL, nil)
}

func TestHTTP_Load(t *testing.T) {
	var gotPath, gotBody string
	e := testExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte(`{"payload": {}}`))
	}))
	if err := e.Load(context.Background(), "tests/"); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if gotPath != "/altwalker/load" {
		t.Fatalf("path: %q", gotPath)
	}
	if !strings.Contains(gotBody, `"path":"tests/"`) {
		t.Fatalf("body: %q", gotBody)
	}
}

func TestHTTP_HasModelAndStep(t *testing.T) {
	var gotQuery string
	e := testExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		switch {
		case strings.HasSuffix(r.URL.Path, "hasModel"):
			_, _ = w.Write([]byte(`{"payload": {"hasModel": true}}`))
		default:
			_, _ = w.Write([]byte(`{"payload": {"hasStep": false}}`))
		}
	}))

	ok, err := e.HasModel(context.Background(), "Login")
	if err != nil || !ok {
		t.Fatalf("HasModel(): %v, %v", ok, err)
	}
	if gotQuery != "name=Login" {
		t.Fatalf("hasModel query: %q", gotQuery)
	}

	ok, err = e.HasStep(context.Background(), "Login", "log_in")
	if err != nil || ok {
		t.Fatalf("HasStep(): %v, %v", ok, err)
	}
	if !strings.Contains(gotQuery, "modelName=Login") || !strings.Contains(gotQuery, "name=log_in") {
		t.Fatalf("hasStep query: %q", gotQuery)
	}

	// Fixtures query without a model name.
	_, _ = e.HasStep(context.Background(), "", "setUpRun")
	if strings.Contains(gotQuery, "modelName") {
		t.Fatalf("fixture hasStep query: %q", gotQuery)
	}
}

func TestHTTP_HasModel_MissingKey(t *testing.T) {
	e := testExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"payload": {}}`))
	}))
	_, err := e.HasModel(context.Background(), "Login")
	var execErr *Error
	if !errors.As(err, &execErr) || execErr.Kind != KindUnhandled {
		t.Fatalf("HasModel() error: %v", err)
	}
}

func TestHTTP_ExecuteStep(t *testing.T) {
	var gotBody map[string]json.RawMessage
	e := testExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_, _ = w.Write([]byte(`{"payload": {
  "output": "checking login\n",
  "data": {"count": "2"},
  "result": 42
}}`))
	}))

	step := planner.Step{ID: "e0", Name: "log_in", ModelName: "Login"}
	result, err := e.ExecuteStep(context.Background(), "Login", "log_in", map[string]string{"count": "1"}, step)
	if err != nil {
		t.Fatalf("ExecuteStep() error: %v", err)
	}
	if result.Output != "checking login\n" || result.Failed() {
		t.Fatalf("result: %+v", result)
	}
	if result.Data["count"] != "2" {
		t.Fatalf("data: %v", result.Data)
	}
	if result.Value != float64(42) {
		t.Fatalf("value: %v", result.Value)
	}
	if _, ok := gotBody["data"]; !ok {
		t.Fatalf("request body missing data: %v", gotBody)
	}
	var sentStep planner.Step
	if err := json.Unmarshal(gotBody["step"], &sentStep); err != nil || sentStep.ID != "e0" {
		t.Fatalf("request body step: %s", gotBody["step"])
	}
}

func TestHTTP_ExecuteStep_StepError(t *testing.T) {
	e := testExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"payload": {
  "output": "x",
  "error": {"message": "boom", "trace": "Traceback ..."}
}}`))
	}))
	result, err := e.ExecuteStep(context.Background(), "Login", "log_in", nil, planner.Step{})
	if err != nil {
		t.Fatalf("ExecuteStep() error: %v", err)
	}
	if !result.Failed() || result.Error.Message != "boom" {
		t.Fatalf("result: %+v", result)
	}
}

func TestHTTP_ExecuteStep_MissingOutput(t *testing.T) {
	e := testExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"payload": {"data": {}}}`))
	}))
	_, err := e.ExecuteStep(context.Background(), "Login", "log_in", nil, planner.Step{})
	var execErr *Error
	if !errors.As(err, &execErr) || execErr.Kind != KindUnhandled {
		t.Fatalf("ExecuteStep() error: %v", err)
	}
}

func TestHTTP_StatusCodeKinds(t *testing.T) {
	cases := []struct {
		code  int
		kind  Kind
		fatal bool
	}{
		{460, KindModelNotFound, false},
		{461, KindStepNotFound, false},
		{462, KindInvalidHandler, false},
		{463, KindPathNotFound, true},
		{464, KindLoadError, true},
		{465, KindNoCodeLoaded, true},
		{500, KindUnhandled, false},
	}
	for _, tc := range cases {
		e := testExecutor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.code)
			_, _ = w.Write([]byte(`{"error": {"message": "nope", "trace": "t"}}`))
		}))
		_, err := e.ExecuteStep(context.Background(), "M", "s", nil, planner.Step{})
		var execErr *Error
		if !errors.As(err, &execErr) {
			t.Fatalf("status %d: %v", tc.code, err)
		}
		if execErr.Kind != tc.kind || execErr.Fatal() != tc.fatal {
			t.Fatalf("status %d: kind=%s fatal=%v", tc.code, execErr.Kind, execErr.Fatal())
		}
		if !strings.Contains(execErr.Message, "nope") || execErr.Trace != "t" {
			t.Fatalf("status %d: %+v", tc.code, execErr)
		}
	}
}

func TestHTTP_TransportError(t *testing.T) {
	e := NewHTTP("http://127.0.0.1:1", nil) // nothing listens here
	_, err := e.HasModel(context.Background(), "Login")
	var execErr *Error
	if !errors.As(err, &execErr) || execErr.Kind != KindTransport || !execErr.Fatal() {
		t.Fatalf("error: %v", err)
	}
}

func TestHTTP_KillWithoutService(t *testing.T) {
	e := NewHTTP(DefaultURL, nil)
	if err := e.Kill(); err != nil {
		t.Fatalf("Kill() error: %v", err)
	}
	if err := e.Kill(); err != nil {
		t.Fatalf("second Kill() error: %v", err)
	}
}

func TestNoop(t *testing.T) {
	ctx := context.Background()
	var e Executor = Noop{}
	if err := e.Load(ctx, "x"); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	ok, err := e.HasStep(ctx, "M", "s")
	if err != nil || !ok {
		t.Fatalf("HasStep(): %v, %v", ok, err)
	}
	result, err := e.ExecuteStep(ctx, "M", "s", nil, planner.Step{})
	if err != nil || result.Failed() {
		t.Fatalf("ExecuteStep(): %+v, %v", result, err)
	}
	if err := e.Kill(); err != nil {
		t.Fatalf("Kill() error: %v", err)
	}
}
