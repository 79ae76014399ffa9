// Package narration reads prompts aloud through the backend text-to-speech
// endpoint and reports when each reading has finished.
package narration

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"ascend-interview-agent/internal/cache"
	"ascend-interview-agent/internal/observability/metrics"
)

// PromptKey identifies one prompt. FollowUp is -1 for a main question.
type PromptKey struct {
	Question int `json:"question"`
	FollowUp int `json:"followUp"`
}

// MainQuestion returns the key of main question q.
func MainQuestion(q int) PromptKey { return PromptKey{Question: q, FollowUp: -1} }

// IsFollowUp reports whether the key names a follow-up.
func (k PromptKey) IsFollowUp() bool { return k.FollowUp >= 0 }

func (k PromptKey) String() string {
	if k.IsFollowUp() {
		return fmt.Sprintf("q%d.f%d", k.Question, k.FollowUp)
	}
	return fmt.Sprintf("q%d", k.Question)
}

// Outcome is how a narration ended. Every outcome counts as finished.
type Outcome int

const (
	OutcomePlayed Outcome = iota
	OutcomeRequestFailed
	OutcomePlaybackFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomePlayed:
		return "played"
	case OutcomeRequestFailed:
		return "request_failed"
	case OutcomePlaybackFailed:
		return "playback_failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", o)
	}
}

// Synthesizer produces audio for text.
type Synthesizer interface {
	TextToSpeech(ctx context.Context, text string) ([]byte, error)
}

// Player plays synthesized audio and returns when playback ends.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}

// DiscardPlayer drops audio, optionally waiting Delay to simulate playback.
type DiscardPlayer struct {
	Delay time.Duration
}

// Play waits for Delay or ctx.
func (p DiscardPlayer) Play(ctx context.Context, audio []byte) error {
	if p.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(p.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DoneFunc is called once per Present with the outcome.
type DoneFunc func(key PromptKey, outcome Outcome)

// Presenter narrates each prompt at most once per session.
// Not safe for concurrent use; the session controller owns it. Synthesis and
// playback run on their own goroutine and report through DoneFunc.
type Presenter struct {
	synth  Synthesizer
	player Player
	cache  cache.Cache
	ttl    time.Duration

	read       map[PromptKey]bool
	inProgress bool
	current    PromptKey
	cancel     context.CancelFunc
}

// NewPresenter creates a presenter. c may be nil to disable caching.
func NewPresenter(synth Synthesizer, player Player, c cache.Cache, ttl time.Duration) *Presenter {
	if player == nil {
		player = DiscardPlayer{}
	}
	return &Presenter{
		synth:  synth,
		player: player,
		cache:  c,
		ttl:    ttl,
		read:   make(map[PromptKey]bool),
	}
}

// HasRead reports whether key has already been narrated.
func (p *Presenter) HasRead(key PromptKey) bool { return p.read[key] }

// InProgress reports whether a narration is running.
func (p *Presenter) InProgress() bool { return p.inProgress }

// Present starts narrating text for key. It returns false without doing
// anything if key was already read or another narration is running.
// The key is marked read immediately, so it is never narrated twice.
func (p *Presenter) Present(ctx context.Context, key PromptKey, text string, done DoneFunc) bool {
	if p.read[key] || p.inProgress {
		return false
	}
	p.read[key] = true
	p.inProgress = true
	p.current = key

	nctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	go func() {
		defer cancel()
		done(key, p.narrate(nctx, key, text))
	}()
	return true
}

// Finish clears the in-progress flag for key. Results for other keys are ignored.
func (p *Presenter) Finish(key PromptKey) {
	if p.inProgress && p.current == key {
		p.inProgress = false
		p.cancel = nil
	}
}

// Cancel stops the running narration, if any. Its DoneFunc still fires
// with OutcomeCancelled.
func (p *Presenter) Cancel() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.inProgress = false
}

func (p *Presenter) narrate(ctx context.Context, key PromptKey, text string) Outcome {
	logger := log.With().Str("prompt", key.String()).Logger()

	audio, err := p.audio(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeCancelled
		}
		metrics.DefaultMetrics.RecordNarrationFailure("request")
		logger.Warn().Err(err).Msg("narration request failed, continuing without audio")
		return OutcomeRequestFailed
	}

	if err := p.player.Play(ctx, audio); err != nil {
		if ctx.Err() != nil {
			return OutcomeCancelled
		}
		metrics.DefaultMetrics.RecordNarrationFailure("playback")
		logger.Warn().Err(err).Msg("narration playback failed, continuing")
		return OutcomePlaybackFailed
	}
	logger.Debug().Int("bytes", len(audio)).Msg("narration finished")
	return OutcomePlayed
}

func (p *Presenter) audio(ctx context.Context, text string) ([]byte, error) {
	key := cache.Key(text)
	if p.cache != nil {
		if b, ok, err := p.cache.Get(ctx, key); err == nil && ok {
			metrics.DefaultMetrics.RecordNarrationCacheHit()
			return b, nil
		} else if err != nil {
			log.Debug().Err(err).Msg("narration cache read failed")
		}
	}

	b, err := p.synth.TextToSpeech(ctx, text)
	if err != nil {
		return nil, err
	}
	if p.cache != nil {
		if err := p.cache.Set(ctx, key, b, p.ttl); err != nil {
			log.Debug().Err(err).Msg("narration cache write failed")
		}
	}
	return b, nil
}
