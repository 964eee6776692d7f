// Package session bridges a raw microphone PCM stream into the intent
// pipeline, and the pipeline's action stream back out to spoken
// confirmations. It plays the role the teacher's ManagedStream played
// (cmd/agent/main.go's onSamples callback + device wiring), generalized from
// a single-turn STT->LLM->TTS loop into VAD-segmented utterance feeding.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/utterance-intent/pipeline/pkg/audio"
	"github.com/utterance-intent/pipeline/pkg/pipeline/action"
	"github.com/utterance-intent/pipeline/pkg/pipeline/intent"
	"github.com/utterance-intent/pipeline/pkg/pipeline/orchestrator"
	"github.com/utterance-intent/pipeline/pkg/pipeline/utterance"
	"github.com/utterance-intent/pipeline/pkg/providers/stt"
	"github.com/utterance-intent/pipeline/pkg/providers/tts"
)

// Logger matches the teacher's minimal structured-logging contract.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noOpLogger struct{}

func (noOpLogger) Debug(string, ...any) {}
func (noOpLogger) Info(string, ...any)  {}
func (noOpLogger) Warn(string, ...any)  {}
func (noOpLogger) Error(string, ...any) {}

// Bridge owns the VAD segmentation and echo suppression state for one mic
// stream, and feeds completed segments to an orchestrator.Pipeline as
// IsFinal, IsUtteranceEnd AsrEvents (see pkg/providers/stt's package doc for
// why every segment arrives as a single final hypothesis rather than a
// stream of interim ones).
type Bridge struct {
	pipeline *orchestrator.Pipeline
	stt      stt.Provider
	lang     stt.Language
	vad      audio.VAD
	echo     *audio.EchoSuppressor
	logger   Logger

	mu      sync.Mutex
	segment []byte
}

// New wires a Bridge. vad may be nil to disable segmentation (e.g. when the
// caller already segments audio upstream and calls Flush); echo suppression
// is always set up.
func New(p *orchestrator.Pipeline, sttProvider stt.Provider, lang stt.Language, vad audio.VAD, logger Logger) *Bridge {
	if logger == nil {
		logger = noOpLogger{}
	}
	return &Bridge{
		pipeline: p,
		stt:      sttProvider,
		lang:     lang,
		vad:      vad,
		echo:     audio.NewEchoSuppressor(),
		logger:   logger,
	}
}

// WriteMic feeds one block of captured PCM. On a VAD speech_end transition
// the accumulated segment is transcribed and handed to the pipeline.
func (b *Bridge) WriteMic(ctx context.Context, chunk []byte) {
	clean := b.echo.RemoveEchoRealtime(chunk)

	b.mu.Lock()
	b.segment = append(b.segment, clean...)
	b.mu.Unlock()

	if b.vad == nil {
		return
	}
	ev, err := b.vad.Process(clean)
	if err != nil {
		b.logger.Warn("session: vad error", "err", err)
		return
	}
	if ev != nil && ev.Type == audio.VADSpeechEnd {
		b.flush(ctx)
	}
}

// Flush forces the current segment through transcription regardless of VAD
// state, e.g. on an explicit push-to-talk release.
func (b *Bridge) Flush(ctx context.Context) {
	b.flush(ctx)
}

func (b *Bridge) flush(ctx context.Context) {
	b.mu.Lock()
	seg := b.segment
	b.segment = nil
	b.mu.Unlock()

	if len(seg) == 0 {
		return
	}

	text, err := b.stt.Transcribe(ctx, seg, b.lang)
	if err != nil {
		b.logger.Error("session: transcribe failed", "err", fmt.Errorf("%w: %v", ErrTranscribeFailed, err))
		return
	}
	if text == "" {
		return
	}

	b.pipeline.ProcessAsrEvent(ctx, utterance.AsrEvent{
		Text: text, IsFinal: true, IsUtteranceEnd: true, ReceivedAt: time.Now(),
	})
}

// confirmationPhrase maps an imperative subtype to a short spoken
// acknowledgement. Statement/Question intents never reach the router, so no
// phrase is needed for them.
func confirmationPhrase(subtype intent.Subtype) string {
	switch subtype {
	case intent.SubtypeStop:
		return "Stopping."
	case intent.SubtypeRepeat:
		return "Repeating."
	case intent.SubtypeContinue:
		return "Continuing."
	case intent.SubtypeStartOver:
		return "Starting over."
	case intent.SubtypeGenerate:
		return "One moment."
	default:
		return ""
	}
}

// SpeakConfirmations subscribes to the pipeline's action stream and
// synthesizes a short spoken acknowledgement for every non-debounced
// action, recording the synthesized audio into the echo suppressor so the
// next WriteMic call doesn't re-trigger on its own output. onChunk receives
// the synthesized PCM for playback; it may be nil to discard audio (useful
// in tests or headless replay).
func (b *Bridge) SpeakConfirmations(ctx context.Context, synth tts.Provider, onChunk func([]byte)) {
	ch := b.pipeline.Actions.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				b.speak(ctx, synth, ev, onChunk)
			}
		}
	}()
}

func (b *Bridge) speak(ctx context.Context, synth tts.Provider, ev action.Event, onChunk func([]byte)) {
	if ev.WasDebounced {
		return
	}
	phrase := confirmationPhrase(ev.Subtype)
	if phrase == "" {
		return
	}
	pcm, err := synth.Synthesize(ctx, phrase, tts.VoiceF1, tts.LanguageEn)
	if err != nil {
		b.logger.Error("session: synthesize failed", "err", fmt.Errorf("%w: %v", ErrSynthesizeFailed, err))
		return
	}
	b.echo.RecordPlayedAudio(pcm)
	if onChunk != nil {
		onChunk(pcm)
	}
}
