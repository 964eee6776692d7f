package recording

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/utterance-intent/pipeline/pkg/pipeline/intent"
	"github.com/utterance-intent/pipeline/pkg/pipeline/orchestrator"
	"github.com/utterance-intent/pipeline/pkg/pipeline/utterance"
)

func fastOrchestratorConfig() orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	cfg.Action.ConflictWindow = 20 * time.Millisecond
	cfg.TickInterval = 10 * time.Millisecond
	return cfg
}

func TestRecorderWritesMetadataFirst(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")

	rec, err := New(path, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected a metadata line to have been written")
	}
}

func TestRecorderGeneratesSessionIDWhenUnset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")

	rec, err := New(path, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	player, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if player.Metadata.SessionID == "" {
		t.Fatal("expected a generated session ID when Config.SessionID is unset")
	}
}

func TestRecordAndReplayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")

	rec, err := New(path, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	p1 := orchestrator.New(fastOrchestratorConfig(), intent.NewHeuristicStrategy(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	rec.Attach(ctx, p1)
	p1.Start(ctx)

	p1.ProcessAsrEvent(ctx, utterance.AsrEvent{Text: "what is a closure?", IsUtteranceEnd: true, ReceivedAt: time.Now()})
	time.Sleep(50 * time.Millisecond)

	cancel()
	p1.Stop()
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	player, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(player.records) == 0 {
		t.Fatal("expected at least one replayable input record")
	}

	p2 := orchestrator.New(fastOrchestratorConfig(), intent.NewHeuristicStrategy(), nil)
	intentCh := p2.IntentEvents.Subscribe()
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	p2.Start(ctx2)
	defer p2.Stop()

	go func() {
		if err := player.Replay(ctx2, p2); err != nil {
			t.Errorf("Replay: %v", err)
		}
	}()

	select {
	case ev := <-intentCh:
		if ev.Intent.Type != intent.Question {
			t.Fatalf("expected replayed Question intent, got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for replayed intent event")
	}

	select {
	case <-player.Complete():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for playback_complete")
	}
}

func TestPlayerSkipsUnparsableLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.jsonl")
	content := "{not json\n" + `{"kind":"SessionMetadata","offsetMs":0,"metadata":{"sessionId":"s1"}}` + "\n" +
		`{"kind":"AsrEvent","offsetMs":10,"asr":{"text":"hi","isFinal":true,"isUtteranceEnd":true}}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	player, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if player.SkippedLines != 1 {
		t.Fatalf("expected 1 skipped line, got %d", player.SkippedLines)
	}
	if len(player.records) != 1 {
		t.Fatalf("expected 1 replayable record, got %d", len(player.records))
	}
	if player.Metadata.SessionID != "s1" {
		t.Fatalf("expected metadata to be parsed, got %+v", player.Metadata)
	}
}
