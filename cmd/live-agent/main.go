// Command live-agent runs the utterance/intent pipeline against a live
// microphone, speaking a short confirmation through Lokutor whenever the
// ActionRouter fires. It replaces the teacher's single-turn
// STT->LLM->TTS conversational loop (cmd/agent/main.go) with continuous
// VAD-segmented utterance feeding into orchestrator.Pipeline.
package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/joho/godotenv"

	"github.com/utterance-intent/pipeline/pkg/audio"
	"github.com/utterance-intent/pipeline/pkg/pipeline/action"
	"github.com/utterance-intent/pipeline/pkg/pipeline/intent"
	"github.com/utterance-intent/pipeline/pkg/pipeline/orchestrator"
	"github.com/utterance-intent/pipeline/pkg/pipeline/recording"
	llmProvider "github.com/utterance-intent/pipeline/pkg/providers/llm"
	sttProvider "github.com/utterance-intent/pipeline/pkg/providers/stt"
	ttsProvider "github.com/utterance-intent/pipeline/pkg/providers/tts"
	"github.com/utterance-intent/pipeline/pkg/session"
	"github.com/utterance-intent/pipeline/pkg/transport/wsbroadcast"
)

const (
	sampleRate = 44100
	channels   = 1
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, using system environment variables")
	}

	groqKey := os.Getenv("GROQ_API_KEY")
	openaiKey := os.Getenv("OPENAI_API_KEY")
	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	googleKey := os.Getenv("GOOGLE_API_KEY")
	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	assemblyKey := os.Getenv("ASSEMBLYAI_API_KEY")
	lokutorKey := os.Getenv("LOKUTOR_API_KEY")

	sttProviderName := envOr("STT_PROVIDER", "groq")
	intentStrategyName := envOr("INTENT_STRATEGY", "heuristic")
	llmProviderName := envOr("LLM_PROVIDER", "groq")

	if lokutorKey == "" {
		log.Fatal("Error: LOKUTOR_API_KEY must be set.")
	}

	stt := selectSTT(sttProviderName, groqKey, openaiKey, deepgramKey, assemblyKey)
	if s, ok := stt.(interface{ SetSampleRate(int) }); ok {
		s.SetSampleRate(sampleRate)
	}

	strategy := selectIntentStrategy(intentStrategyName, llmProviderName, groqKey, openaiKey, anthropicKey, googleKey)

	fmt.Printf("Configured: STT=%s | Intent=%s | TTS=lokutor\n", sttProviderName, intentStrategyName)
	fmt.Printf("Sample rate: %dHz\n", sampleRate)
	fmt.Println("Pipeline started. Listening to microphone. Press Ctrl+C to exit.")

	tts := ttsProvider.NewLokutorTTS(lokutorKey)

	pipeline := orchestrator.New(orchestrator.DefaultConfig(), strategy, nil)
	pipeline.RegisterActionHandler(intent.SubtypeStop, func(e action.Event) {
		fmt.Printf("\r\033[K[ACTION] stop\n")
	})
	pipeline.RegisterActionHandler(intent.SubtypeRepeat, func(e action.Event) {
		fmt.Printf("\r\033[K[ACTION] repeat\n")
	})
	pipeline.RegisterActionHandler(intent.SubtypeContinue, func(e action.Event) {
		fmt.Printf("\r\033[K[ACTION] continue\n")
	})
	pipeline.RegisterActionHandler(intent.SubtypeStartOver, func(e action.Event) {
		fmt.Printf("\r\033[K[ACTION] start_over\n")
	})
	pipeline.RegisterActionHandler(intent.SubtypeGenerate, func(e action.Event) {
		fmt.Printf("\r\033[K[ACTION] generate\n")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pipeline.Start(ctx)
	defer pipeline.Stop()

	if recPath := os.Getenv("RECORD_SESSION_PATH"); recPath != "" {
		recCfg := recording.DefaultConfig()
		recCfg.DetectionMode = intentStrategyName
		recCfg.AsrModel = sttProviderName
		recCfg.SampleRate = sampleRate
		recCfg.AudioSource = "microphone"
		rec, err := recording.New(recPath, recCfg, nil)
		if err != nil {
			log.Printf("session recording disabled: %v", err)
		} else {
			rec.Attach(ctx, pipeline)
			defer rec.Close()
		}
	}

	if wsAddr := os.Getenv("WS_BROADCAST_ADDR"); wsAddr != "" {
		hub := wsbroadcast.New(nil)
		hub.Attach(ctx, pipeline)
		go func() {
			log.Printf("wsbroadcast listening on %s", wsAddr)
			if err := http.ListenAndServe(wsAddr, http.HandlerFunc(hub.ServeHTTP)); err != nil {
				log.Printf("wsbroadcast server stopped: %v", err)
			}
		}()
	}

	vad := audio.NewRMSVAD(0.02, 500*time.Millisecond)
	bridge := session.New(pipeline, stt, sttProvider.LanguageEn, vad, nil)

	var playbackMu sync.Mutex
	var playbackBytes []byte

	bridge.SpeakConfirmations(ctx, tts, func(chunk []byte) {
		playbackMu.Lock()
		playbackBytes = append(playbackBytes, chunk...)
		playbackMu.Unlock()
	})

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer mctx.Uninit()

	var botPlayingMu sync.Mutex
	var lastPlayedAt time.Time

	var rmsMu sync.Mutex
	lastRMS := 0.0

	onSamples := func(pOutput, pInput []byte, frameCount uint32) {
		if pInput != nil {
			var sum float64
			for i := 0; i < len(pInput)-1; i += 2 {
				s := int16(pInput[i]) | (int16(pInput[i+1]) << 8)
				f := float64(s) / 32768.0
				sum += f * f
			}
			rms := math.Sqrt(sum / float64(len(pInput)/2))
			rmsMu.Lock()
			lastRMS = rms
			rmsMu.Unlock()

			botPlayingMu.Lock()
			isActuallyPlaying := time.Since(lastPlayedAt) < 200*time.Millisecond
			botPlayingMu.Unlock()

			input := pInput
			if isActuallyPlaying && rms < 0.15 {
				// Raise the effective threshold while our own TTS is audible,
				// same self-interruption-avoidance heuristic the teacher used,
				// but here it gates the whole chunk rather than a scalar flag.
				input = make([]byte, len(pInput))
			}
			bridge.WriteMic(ctx, input)
		}
		if pOutput != nil {
			playbackMu.Lock()
			n := copy(pOutput, playbackBytes)
			playbackBytes = playbackBytes[n:]
			if n > 0 {
				botPlayingMu.Lock()
				lastPlayedAt = time.Now()
				botPlayingMu.Unlock()
			}
			for i := n; i < len(pOutput); i++ {
				pOutput[i] = 0
			}
			playbackMu.Unlock()
		}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = channels
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = channels
	deviceConfig.SampleRate = sampleRate
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		log.Fatal(err)
	}

	go func() {
		for {
			rmsMu.Lock()
			level := lastRMS
			rmsMu.Unlock()
			dots := int(level * 500)
			if dots > 40 {
				dots = 40
			}
			meter := ""
			for i := 0; i < dots; i++ {
				meter += "|"
			}
			fmt.Printf("\r[MIC ENERGY: %-40s] RMS: %.5f", meter, level)
			time.Sleep(100 * time.Millisecond)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Printf("\nShutting down...\n")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func selectSTT(name, groqKey, openaiKey, deepgramKey, assemblyKey string) sttProvider.Provider {
	switch name {
	case "openai":
		if openaiKey == "" {
			log.Fatal("Error: OPENAI_API_KEY must be set for openai STT")
		}
		return sttProvider.NewOpenAISTT(openaiKey, "whisper-1")
	case "deepgram":
		if deepgramKey == "" {
			log.Fatal("Error: DEEPGRAM_API_KEY must be set for deepgram STT")
		}
		return sttProvider.NewDeepgramSTT(deepgramKey)
	case "assemblyai":
		if assemblyKey == "" {
			log.Fatal("Error: ASSEMBLYAI_API_KEY must be set for assemblyai STT")
		}
		return sttProvider.NewAssemblyAISTT(assemblyKey)
	case "groq":
		fallthrough
	default:
		if groqKey == "" {
			log.Fatal("Error: GROQ_API_KEY must be set for groq STT")
		}
		model := envOr("GROQ_STT_MODEL", "whisper-large-v3-turbo")
		return sttProvider.NewGroqSTT(groqKey, model)
	}
}

func selectLLMBackend(name, groqKey, openaiKey, anthropicKey, googleKey string) intent.Backend {
	switch name {
	case "openai":
		if openaiKey == "" {
			log.Fatal("Error: OPENAI_API_KEY must be set for openai LLM")
		}
		return llmProvider.NewOpenAI(openaiKey, "gpt-4o")
	case "anthropic":
		if anthropicKey == "" {
			log.Fatal("Error: ANTHROPIC_API_KEY must be set for anthropic LLM")
		}
		return llmProvider.NewAnthropic(anthropicKey, "claude-3-5-sonnet-20241022")
	case "google":
		if googleKey == "" {
			log.Fatal("Error: GOOGLE_API_KEY must be set for google LLM")
		}
		return llmProvider.NewGoogle(googleKey, "gemini-1.5-flash")
	case "groq":
		fallthrough
	default:
		if groqKey == "" {
			log.Fatal("Error: GROQ_API_KEY must be set for groq LLM")
		}
		return llmProvider.NewGroq(groqKey, "llama-3.3-70b-versatile")
	}
}

// selectIntentStrategy honors INTENT_STRATEGY=heuristic|llm|parallel. The
// default is heuristic: it's the only strategy with no network dependency
// and no added utterance-to-action latency, matching spec §3's stated
// preference for the heuristic path wherever it's confident.
func selectIntentStrategy(strategyName, llmName, groqKey, openaiKey, anthropicKey, googleKey string) intent.Strategy {
	switch strategyName {
	case "llm":
		backend := selectLLMBackend(llmName, groqKey, openaiKey, anthropicKey, googleKey)
		return intent.NewLLMStrategy(backend, intent.DefaultLLMConfig())
	case "parallel":
		backend := selectLLMBackend(llmName, groqKey, openaiKey, anthropicKey, googleKey)
		llmStrategy := intent.NewLLMStrategy(backend, intent.DefaultLLMConfig())
		return intent.NewParallelStrategy(llmStrategy)
	case "heuristic":
		fallthrough
	default:
		return intent.NewHeuristicStrategy()
	}
}
