package planner

import (
	"context"
	"path/filepath"
	"testing"
)

func samplePath() []Step {
	return []Step{
		{ID: "v0", Name: "logged_out", ModelName: "Login"},
		{ID: "e0", Name: "log_in", ModelName: "Login"},
		{ID: "v1", Name: "logged_in", ModelName: "Login"},
	}
}

func TestOffline_Replay(t *testing.T) {
	ctx := context.Background()
	p := NewOffline(samplePath())

	var names []string
	for {
		ok, err := p.HasNext(ctx)
		if err != nil {
			t.Fatalf("HasNext() error: %v", err)
		}
		if !ok {
			break
		}
		step, err := p.GetNext(ctx)
		if err != nil {
			t.Fatalf("GetNext() error: %v", err)
		}
		names = append(names, step.Name)
	}
	want := []string{"logged_out", "log_in", "logged_in"}
	if len(names) != len(want) {
		t.Fatalf("steps: got %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("steps: got %v, want %v", names, want)
		}
	}

	if _, err := p.GetNext(ctx); err == nil {
		t.Fatalf("GetNext() past end expected error")
	}
}

func TestOffline_RestartResets(t *testing.T) {
	ctx := context.Background()
	p := NewOffline(samplePath())
	if _, err := p.GetNext(ctx); err != nil {
		t.Fatalf("GetNext() error: %v", err)
	}
	if err := p.Fail(ctx, "boom"); err != nil {
		t.Fatalf("Fail() error: %v", err)
	}
	if err := p.Restart(ctx); err != nil {
		t.Fatalf("Restart() error: %v", err)
	}
	step, err := p.GetNext(ctx)
	if err != nil {
		t.Fatalf("GetNext() after restart: %v", err)
	}
	if step.ID != "v0" {
		t.Fatalf("step after restart: %+v", step)
	}
	stats, err := p.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("GetStatistics() error: %v", err)
	}
	if _, ok := stats["failedStep"]; ok {
		t.Fatalf("failedStep survived restart: %v", stats)
	}
}

func TestOffline_DataOperationsAreInert(t *testing.T) {
	ctx := context.Background()
	p := NewOffline(samplePath())
	data, err := p.GetData(ctx)
	if err != nil || len(data) != 0 {
		t.Fatalf("GetData(): %v, %v", data, err)
	}
	if err := p.SetData(ctx, "count", 1); err != nil {
		t.Fatalf("SetData() error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}

func TestOffline_StatisticsTrackFailure(t *testing.T) {
	ctx := context.Background()
	p := NewOffline(samplePath())
	_, _ = p.GetNext(ctx)
	step, _ := p.GetNext(ctx)
	if err := p.Fail(ctx, "assertion failed"); err != nil {
		t.Fatalf("Fail() error: %v", err)
	}
	stats, err := p.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("GetStatistics() error: %v", err)
	}
	if stats["totalNumberOfSteps"] != 3 || stats["totalCompletedNumberOfSteps"] != 2 {
		t.Fatalf("stats: %v", stats)
	}
	failed, ok := stats["failedStep"].(Step)
	if !ok || failed.Name != step.Name {
		t.Fatalf("failedStep: %v", stats["failedStep"])
	}
	if stats["failedMessage"] != "assertion failed" {
		t.Fatalf("failedMessage: %v", stats["failedMessage"])
	}
}

type fakeClient struct {
	hasNext  bool
	step     Step
	data     map[string]string
	setCalls []string
	failMsg  string
	restarts int
}

func (f *fakeClient) HasNext(ctx context.Context) (bool, error) { return f.hasNext, nil }
func (f *fakeClient) GetNext(ctx context.Context) (Step, error) { return f.step, nil }
func (f *fakeClient) GetData(ctx context.Context) (map[string]string, error) {
	return f.data, nil
}
func (f *fakeClient) SetData(ctx context.Context, key string, value any) error {
	f.setCalls = append(f.setCalls, key)
	return nil
}
func (f *fakeClient) Restart(ctx context.Context) error { f.restarts++; return nil }
func (f *fakeClient) Fail(ctx context.Context, message string) error {
	f.failMsg = message
	return nil
}
func (f *fakeClient) GetStatistics(ctx context.Context) (Statistics, error) {
	return Statistics{"totalNumberOfSteps": 7}, nil
}

type fakeService struct{ closed int }

func (f *fakeService) Close() error { f.closed++; return nil }

func TestOnline_DelegatesToClient(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{hasNext: true, step: Step{ID: "v0", Name: "start", ModelName: "M"}}
	p := NewOnline(client, nil)

	ok, err := p.HasNext(ctx)
	if err != nil || !ok {
		t.Fatalf("HasNext(): %v, %v", ok, err)
	}
	step, err := p.GetNext(ctx)
	if err != nil || step.Name != "start" {
		t.Fatalf("GetNext(): %+v, %v", step, err)
	}
	if err := p.SetData(ctx, "k", "v"); err != nil {
		t.Fatalf("SetData() error: %v", err)
	}
	if err := p.Fail(ctx, "oops"); err != nil {
		t.Fatalf("Fail() error: %v", err)
	}
	if err := p.Restart(ctx); err != nil {
		t.Fatalf("Restart() error: %v", err)
	}
	stats, err := p.GetStatistics(ctx)
	if err != nil || stats["totalNumberOfSteps"] != 7 {
		t.Fatalf("GetStatistics(): %v, %v", stats, err)
	}
	if client.failMsg != "oops" || client.restarts != 1 || len(client.setCalls) != 1 {
		t.Fatalf("client calls: %+v", client)
	}
}

func TestOnline_CloseKillsServiceOnce(t *testing.T) {
	svc := &fakeService{}
	p := NewOnline(&fakeClient{}, svc)
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
	if svc.closed != 1 {
		t.Fatalf("service closed %d times", svc.closed)
	}
}

func TestPathFile_RoundTrip(t *testing.T) {
	steps := append(samplePath(), Step{Name: "setUpRun"})
	path := filepath.Join(t.TempDir(), "reports", "steps.json")
	if err := SavePath(path, steps); err != nil {
		t.Fatalf("SavePath() error: %v", err)
	}
	got, err := LoadPath(path)
	if err != nil {
		t.Fatalf("LoadPath() error: %v", err)
	}
	if len(got) != len(steps) {
		t.Fatalf("steps: got %d, want %d", len(got), len(steps))
	}
	for i := range steps {
		if got[i].ID != steps[i].ID || got[i].Name != steps[i].Name || got[i].ModelName != steps[i].ModelName {
			t.Fatalf("step %d: got %+v, want %+v", i, got[i], steps[i])
		}
	}
	if !got[3].IsFixture() {
		t.Fatalf("fixture step lost its shape: %+v", got[3])
	}
}

func TestLoadPath_Invalid(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := SavePath(bad, nil); err != nil {
		t.Fatalf("SavePath() error: %v", err)
	}
	if _, err := LoadPath(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	got, err := LoadPath(bad)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty path: %v, %v", got, err)
	}
}
