// Command replay loads a session recording produced by cmd/live-agent (or
// any recording.Recorder) and replays its input events into a fresh
// pipeline, optionally running against a real LLM backend instead of the
// heuristic strategy the live session used, so its intent decisions can be
// compared against what was actually recorded.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/utterance-intent/pipeline/pkg/pipeline/action"
	"github.com/utterance-intent/pipeline/pkg/pipeline/intent"
	"github.com/utterance-intent/pipeline/pkg/pipeline/orchestrator"
	"github.com/utterance-intent/pipeline/pkg/pipeline/recording"
	llmProvider "github.com/utterance-intent/pipeline/pkg/providers/llm"
)

func main() {
	path := flag.String("recording", "", "path to a .jsonl session recording")
	strategyName := flag.String("strategy", "heuristic", "intent strategy to replay against: heuristic|llm|parallel")
	llmName := flag.String("llm", "groq", "LLM backend when -strategy=llm or parallel")
	flag.Parse()

	if *path == "" {
		log.Fatal("Error: -recording is required")
	}

	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, using system environment variables")
	}

	player, err := recording.Load(*path, nil)
	if err != nil {
		log.Fatalf("failed to load recording: %v", err)
	}
	fmt.Printf("Loaded recording: session=%s version=%s detectionMode=%s skipped=%d\n",
		player.Metadata.SessionID, player.Metadata.Version, player.Metadata.Config.DetectionMode, player.SkippedLines)

	strategy := buildStrategy(*strategyName, *llmName)

	pipeline := orchestrator.New(orchestrator.DefaultConfig(), strategy, nil)
	pipeline.RegisterActionHandler(intent.SubtypeStop, logAction)
	pipeline.RegisterActionHandler(intent.SubtypeRepeat, logAction)
	pipeline.RegisterActionHandler(intent.SubtypeContinue, logAction)
	pipeline.RegisterActionHandler(intent.SubtypeStartOver, logAction)
	pipeline.RegisterActionHandler(intent.SubtypeGenerate, logAction)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pipeline.Start(ctx)
	defer pipeline.Stop()

	go func() {
		for ev := range pipeline.IntentEvents.Subscribe() {
			fmt.Printf("[INTENT] kind=%s type=%s subtype=%s confidence=%.2f text=%q\n",
				ev.Kind, ev.Intent.Type, ev.Intent.Subtype, ev.Intent.Confidence, ev.Intent.SourceText)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- player.Replay(ctx, pipeline) }()

	select {
	case err := <-done:
		if err != nil {
			log.Fatalf("replay failed: %v", err)
		}
		fmt.Println("Replay complete.")
	case <-sig:
		fmt.Println("\nInterrupted.")
	}
}

func logAction(e action.Event) {
	fmt.Printf("[ACTION] subtype=%s debounced=%v\n", e.Subtype, e.WasDebounced)
}

func buildStrategy(strategyName, llmName string) intent.Strategy {
	switch strategyName {
	case "llm":
		return intent.NewLLMStrategy(buildBackend(llmName), intent.DefaultLLMConfig())
	case "parallel":
		return intent.NewParallelStrategy(intent.NewLLMStrategy(buildBackend(llmName), intent.DefaultLLMConfig()))
	case "heuristic":
		fallthrough
	default:
		return intent.NewHeuristicStrategy()
	}
}

func buildBackend(name string) intent.Backend {
	switch name {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			log.Fatal("Error: OPENAI_API_KEY must be set for openai LLM")
		}
		return llmProvider.NewOpenAI(key, "gpt-4o")
	case "anthropic":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			log.Fatal("Error: ANTHROPIC_API_KEY must be set for anthropic LLM")
		}
		return llmProvider.NewAnthropic(key, "claude-3-5-sonnet-20241022")
	case "google":
		key := os.Getenv("GOOGLE_API_KEY")
		if key == "" {
			log.Fatal("Error: GOOGLE_API_KEY must be set for google LLM")
		}
		return llmProvider.NewGoogle(key, "gemini-1.5-flash")
	case "groq":
		fallthrough
	default:
		key := os.Getenv("GROQ_API_KEY")
		if key == "" {
			log.Fatal("Error: GROQ_API_KEY must be set for groq LLM")
		}
		return llmProvider.NewGroq(key, "llama-3.3-70b-versatile")
	}
}
