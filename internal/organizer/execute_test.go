package organizer

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/attic/internal/models"
	"github.com/starford/attic/internal/storage"
)

func quietLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

type recorded struct {
	from, to, status, errMsg string
}

type memRecorder struct{ rows []recorded }

func (r *memRecorder) RecordMove(_ context.Context, _ string, m models.Move, status, errMsg string) error {
	r.rows = append(r.rows, recorded{m.From, m.To, status, errMsg})
	return nil
}

func seed(t *testing.T, files ...string) *storage.FS {
	t.Helper()
	fs := storage.NewMemFS()
	for _, p := range files {
		if err := fs.Write(p, []byte(p)); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	return fs
}

func TestExecute_CreatesRootAndAncestors(t *testing.T) {
	fs := seed(t, "notes/img.png", "notes/b.pdf")
	rec := &memRecorder{}
	moves := []models.Move{
		{From: "notes/img.png", To: "_Attachments/img.png"},
		{From: "notes/b.pdf", To: "_Attachments/2024/03/b.pdf"},
	}
	res, err := Execute(context.Background(), fs, moves, ExecuteOptions{
		Root: "_Attachments", RunID: "r1", Recorder: rec, Logger: quietLogger(),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Moved != 2 || res.Errors != 0 || res.Skipped != 0 {
		t.Errorf("result = %+v", res)
	}
	for _, p := range []string{"_Attachments/img.png", "_Attachments/2024/03/b.pdf"} {
		if !fs.Exists(p) {
			t.Errorf("%s missing", p)
		}
	}
	if fs.Exists("notes/img.png") {
		t.Error("source should be gone")
	}
	if len(rec.rows) != 2 || rec.rows[0].status != models.StatusMoved {
		t.Errorf("journal = %+v", rec.rows)
	}
}

func TestExecute_EmptyPlanStillCreatesRoot(t *testing.T) {
	fs := seed(t)
	if _, err := Execute(context.Background(), fs, nil, ExecuteOptions{Root: "media", Logger: quietLogger()}); err != nil {
		t.Fatal(err)
	}
	if !fs.Exists("media") {
		t.Error("root should exist")
	}
}

func TestExecute_SkipsAppearedDestinationAndCountsFailures(t *testing.T) {
	fs := seed(t, "a.png", "_Attachments/a.png", "c.png")
	rec := &memRecorder{}
	moves := []models.Move{
		{From: "a.png", To: "_Attachments/a.png"},
		{From: "missing.png", To: "_Attachments/missing.png"},
		{From: "c.png", To: "_Attachments/c.png"},
	}
	res, err := Execute(context.Background(), fs, moves, ExecuteOptions{Root: "_Attachments", Recorder: rec, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if res.Moved != 1 || res.Skipped != 1 || res.Errors != 1 {
		t.Errorf("result = %+v", res)
	}
	if !fs.Exists("a.png") {
		t.Error("skipped source must stay")
	}
	if rec.rows[1].status != models.StatusFailed || rec.rows[1].errMsg == "" {
		t.Errorf("failure not journaled: %+v", rec.rows[1])
	}
}

func TestExecute_LinkUpdaterResults(t *testing.T) {
	fs := seed(t, "a.png", "b.png")
	moves := []models.Move{
		{From: "a.png", To: "m/a.png"},
		{From: "b.png", To: "m/b.png"},
	}
	calls := 0
	links := func(from, to string) (int, error) {
		calls++
		if from == "b.png" {
			return 1, errors.New("boom")
		}
		return 2, nil
	}
	res, err := Execute(context.Background(), fs, moves, ExecuteOptions{Root: "m", Links: links, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 || res.LinksUpdated != 3 || res.LinkErrors != 1 || res.Moved != 2 {
		t.Errorf("calls=%d result=%+v", calls, res)
	}
}

func TestExecute_StopsOnCancelledContext(t *testing.T) {
	fs := seed(t, "a.png")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := Execute(ctx, fs, []models.Move{{From: "a.png", To: "m/a.png"}}, ExecuteOptions{Logger: quietLogger()})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	if res.Moved != 0 || !fs.Exists("a.png") {
		t.Errorf("nothing should move: %+v", res)
	}
}

func TestScenario_SecondRunPlansNothing(t *testing.T) {
	fs := seed(t, "notes/img.png", "notes/n.md")
	s := defaultsWithReorganize()
	run := func() []models.Move {
		entries, err := fs.List()
		if err != nil {
			t.Fatal(err)
		}
		return BuildPlan(Scan(entries, s), NewResolver(s, nil), fs.Exists)
	}
	first := run()
	if len(first) != 1 {
		t.Fatalf("first plan = %+v", first)
	}
	if _, err := Execute(context.Background(), fs, first, ExecuteOptions{Root: s.AttachmentRoot(), Logger: quietLogger()}); err != nil {
		t.Fatal(err)
	}
	if again := run(); len(again) != 0 {
		t.Errorf("second plan = %+v", again)
	}
}

func TestRun_OnLoadThenStops(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Schedule{OnLoad: true, Delay: 5 * time.Millisecond}, func(context.Context) {
			calls.Add(1)
		})
	}()
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d", calls.Load())
	}
}

func TestRun_DisabledReturnsImmediately(t *testing.T) {
	if err := Run(context.Background(), Schedule{}, func(context.Context) { t.Error("must not run") }); err != nil {
		t.Fatal(err)
	}
}
