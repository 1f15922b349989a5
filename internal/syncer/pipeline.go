// Package syncer implements the mutation pipeline: it validates commands,
// sends them, and patches the normalized cache only after the server has
// acknowledged the result. Nothing here is optimistic; the cache always
// reflects server-confirmed state.
package syncer

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/example/slotsync/internal/command"
	"github.com/example/slotsync/internal/logging"
	"github.com/example/slotsync/internal/metrics"
	"github.com/example/slotsync/internal/notify"
	"github.com/example/slotsync/internal/store"
	"github.com/example/slotsync/internal/transport"
	"github.com/example/slotsync/internal/undo"
)

// Pipeline orchestrates the validate, send, reconcile and undo-record steps
// for every mutation command.
type Pipeline struct {
	store     *store.Store
	caller    transport.Caller
	ledger    *undo.Ledger
	notifier  notify.Notifier
	validator *command.Validator
	recorder  metrics.Recorder
	logger    *slog.Logger
	now       func() time.Time

	// applyMu serializes reconciliation so patches land in server
	// acknowledgement order even when commands are in flight concurrently.
	applyMu sync.Mutex
}

// NewPipeline wires dependencies for the mutation pipeline. notifier and
// recorder may be nil; a nil now falls back to time.Now.
func NewPipeline(st *store.Store, caller transport.Caller, ledger *undo.Ledger, notifier notify.Notifier, now func() time.Time, logger *slog.Logger, recorder metrics.Recorder) *Pipeline {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:     st,
		caller:    caller,
		ledger:    ledger,
		notifier:  notifier,
		validator: command.NewValidator(now),
		recorder:  recorder,
		logger:    logger,
		now:       now,
	}
}

// Dispatch runs a command through the full pipeline. The returned error is
// one of *command.ValidationError, *transport.Error, *LogicalFailure or
// *ResponseShapeError; in every failure case the cache is unchanged.
func (p *Pipeline) Dispatch(ctx context.Context, cmd command.Command) error {
	return p.dispatch(ctx, cmd, true)
}

func (p *Pipeline) dispatch(ctx context.Context, cmd command.Command, recordUndo bool) error {
	logger := p.commandLogger(ctx, cmd)

	if err := p.validator.Validate(cmd); err != nil {
		logger.Warn("command rejected by validation", "error", err)
		p.notifyWarning(err.Error())
		p.recordOutcome(cmd, ErrorKind(err))
		return err
	}

	resp, err := p.caller.Call(ctx, cmd.Request())
	if err != nil {
		logger.Error("command transport failed", "error", err)
		p.recordOutcome(cmd, ErrorKind(err))
		return err
	}

	if !slices.Contains(cmd.Markers(), resp.Message) {
		logger.Warn("server reported unexpected outcome", "message", resp.Message)
		p.notifyWarning(resp.Message)
		failure := &LogicalFailure{Command: cmd.Kind(), Message: resp.Message}
		p.recordOutcome(cmd, ErrorKind(failure))
		return failure
	}

	p.applyMu.Lock()
	entry, err := p.reconcile(cmd, resp)
	if err != nil {
		p.applyMu.Unlock()
		logger.Error("response failed shape validation", "error", err)
		p.recordOutcome(cmd, ErrorKind(err))
		return err
	}
	if recordUndo && entry != nil && p.ledger != nil {
		entry.Message = resp.Message
		entry.Kind = string(cmd.Kind())
		p.ledger.Push(*entry)
	}
	p.applyMu.Unlock()

	p.notifyInfo(resp.Message)
	p.recordOutcome(cmd, "committed")
	logger.Info("command committed", "message", resp.Message)
	return nil
}

// UndoPop pops the most recent ledger entry and dispatches its inverse
// command through the pipeline. It reports false when the ledger is empty.
// When the inverse dispatch fails the entry is pushed back so the user can
// retry.
func (p *Pipeline) UndoPop(ctx context.Context) (bool, error) {
	if p.ledger == nil {
		return false, nil
	}
	entry, ok := p.ledger.Pop()
	if !ok {
		return false, nil
	}

	inverse, ok := command.InverseFor(entry)
	if !ok {
		p.logger.Warn("undo entry has no inverse command", "kind", entry.Kind)
		return false, nil
	}

	if err := p.dispatch(ctx, inverse, false); err != nil {
		p.ledger.Push(entry)
		return false, err
	}
	return true, nil
}

func (p *Pipeline) commandLogger(ctx context.Context, cmd command.Command) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = p.logger
	}
	return logger.With("component", "pipeline", "command", string(cmd.Kind()))
}

func (p *Pipeline) notifyInfo(message string) {
	if p.notifier != nil {
		p.notifier.Notify(notify.Notice{Level: notify.LevelInfo, Message: message})
	}
}

func (p *Pipeline) notifyWarning(message string) {
	if p.notifier != nil {
		p.notifier.Notify(notify.Notice{Level: notify.LevelWarning, Message: message})
	}
}

func (p *Pipeline) recordOutcome(cmd command.Command, outcome string) {
	if p.recorder != nil {
		p.recorder.RecordMutation(string(cmd.Kind()), outcome)
	}
}
