package companion

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Stage is a state of the dispatch state machine.
type Stage int

const (
	StageLoaded Stage = iota
	StageGenerating
	StageSummarizing
	StageScoring
	StagePersisting
	StageSending
	StageDone
	StageError
)

func (s Stage) String() string {
	switch s {
	case StageLoaded:
		return "loaded"
	case StageGenerating:
		return "generating"
	case StageSummarizing:
		return "summarizing"
	case StageScoring:
		return "scoring"
	case StagePersisting:
		return "persisting"
	case StageSending:
		return "sending"
	case StageDone:
		return "done"
	case StageError:
		return "error"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// PipelineConfig holds the reactive path limits.
type PipelineConfig struct {
	MaxTurns         int
	SummaryThreshold int
}

// Outcome records what one dispatch did.
type Outcome struct {
	Stages    []Stage
	Result    Result
	Affinity  int
	Persisted bool
	Sent      int
	// Err joins every failure met along the way.
	Err error
}

// Pipeline turns a settled batch into a reply.
type Pipeline struct {
	store   HistoryStore
	gen     *Generator
	tracker *AffinityTracker
	courier *Courier
	cfg     PipelineConfig
}

func NewPipeline(store HistoryStore, gen *Generator, tracker *AffinityTracker, courier *Courier, cfg PipelineConfig) *Pipeline {
	if cfg.SummaryThreshold <= 0 {
		cfg.SummaryThreshold = 3
	}
	return &Pipeline{store: store, gen: gen, tracker: tracker, courier: courier, cfg: cfg}
}

// dispatch is the working state of one run.
type dispatch struct {
	batch    Batch
	combined string
	state    State
	text     string
	out      Outcome
	logger   zerolog.Logger

	stopTyping func()
}

// Dispatch walks the batch through the state machine until StageDone.
func (p *Pipeline) Dispatch(ctx context.Context, batch Batch) Outcome {
	d := &dispatch{
		batch:  batch,
		logger: log.With().Str("component", "pipeline").Str("batch", batch.ID).Str("user", batch.UserID).Logger(),
	}

	done := make(chan struct{})
	var once sync.Once
	d.stopTyping = func() { once.Do(func() { close(done) }) }
	defer d.stopTyping()
	go p.courier.keepTyping(ctx, batch.UserID, done)

	stage := StageLoaded
	for {
		d.out.Stages = append(d.out.Stages, stage)
		if stage == StageDone {
			break
		}
		stage = p.step(ctx, stage, d)
	}
	return d.out
}

func (p *Pipeline) step(ctx context.Context, stage Stage, d *dispatch) Stage {
	switch stage {
	case StageLoaded:
		d.state = p.store.Load(ctx, d.batch.UserID)
		d.combined = d.batch.Combined()
		d.out.Affinity = d.state.Affinity
		d.logger.Info().Int("messages", len(d.batch.Messages)).Int("history", len(d.state.History)).Int("affinity", d.state.Affinity).Msg("batch loaded")
		return StageGenerating

	case StageGenerating:
		req := Request{History: d.state.History, Prompt: d.combined, Affinity: d.state.Affinity, Threshold: p.cfg.SummaryThreshold}
		full, err := p.gen.generate(ctx, p.gen.buildContext(req))
		if err != nil {
			d.out.Err = errors.Join(d.out.Err, err)
			return StageError
		}
		d.out.Result = Result{Full: full, Final: full}
		if needsSummary(full, p.cfg.SummaryThreshold) {
			return StageSummarizing
		}
		return StageScoring

	case StageSummarizing:
		d.out.Result.Final = p.gen.shorten(ctx, d.out.Result.Full, p.cfg.SummaryThreshold)
		d.out.Result.Summarized = true
		return StageScoring

	case StageScoring:
		d.out.Affinity = p.tracker.Update(ctx, d.state.Affinity, d.combined)
		return StagePersisting

	case StagePersisting:
		history := append(slices.Clone(d.state.History),
			Turn{Role: RoleUser, Content: d.combined},
			Turn{Role: RoleModel, Content: d.out.Result.Full},
		)
		next := State{History: TrimHistory(history, p.cfg.MaxTurns), Affinity: d.out.Affinity}
		if err := p.store.Save(ctx, d.batch.UserID, next); err != nil {
			err = fmt.Errorf("%w: %w", ErrPersistence, err)
			d.out.Err = errors.Join(d.out.Err, err)
			d.logger.Error().Err(err).Msg("could not save conversation")
		} else {
			d.out.Persisted = true
		}
		d.text = d.out.Result.Final
		return StageSending

	case StageError:
		d.logger.Error().Err(d.out.Err).Msg("reply generation failed, sending apology")
		d.out.Result = Result{Full: Apology, Final: Apology}
		d.out.Affinity = d.state.Affinity
		d.text = Apology
		return StageSending

	case StageSending:
		d.stopTyping()
		n, err := p.courier.Deliver(ctx, d.batch.UserID, d.text)
		d.out.Sent = n
		if err != nil {
			d.out.Err = errors.Join(d.out.Err, err)
			logDeliveryFailure(d.logger, err, n)
		}
		return StageDone
	}
	return StageDone
}

// logDeliveryFailure tells unreachable users apart from users who block DMs.
func logDeliveryFailure(logger zerolog.Logger, err error, sent int) {
	ev := logger.Warn()
	switch {
	case errors.Is(err, ErrRecipientNotFound):
		ev = ev.Str("reason", "not_found")
	case errors.Is(err, ErrRecipientForbidden):
		ev = ev.Str("reason", "forbidden")
	default:
		ev = logger.Error().Str("reason", "transport")
	}
	ev.Err(err).Int("sent", sent).Msg("delivery failed")
}
