// Package dispatch sends one email per artifact binding and reports a
// per-binding outcome. A failure on one binding never stops the others.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/slipmail/slipmail/internal/binding"
	"github.com/slipmail/slipmail/internal/model"
)

// Config holds sender identity and dispatch policy.
type Config struct {
	FromAddress    string
	FromName       string
	DefaultSubject string
	DefaultBody    string

	// Concurrency bounds outstanding sends. 1 sends strictly in order.
	Concurrency int

	// RejectDuplicates makes a repeated recipient a hard precondition failure.
	RejectDuplicates bool
}

// Preflighter is implemented by transports that can detect a broken
// configuration before any message is sent.
type Preflighter interface {
	Preflight() error
}

// Engine resolves bindings against the artifact registry and sends them.
type Engine struct {
	artifacts model.ArtifactSource
	blobs     model.BlobStore
	transport model.Transport
	directory model.RecipientLookup
	recorder  model.DispatchRecorder
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
}

// New creates a dispatch engine.
func New(artifacts model.ArtifactSource, blobs model.BlobStore, transport model.Transport, cfg Config, log zerolog.Logger) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if strings.TrimSpace(cfg.FromName) == "" {
		cfg.FromName = model.DefaultFromName
	}
	if strings.TrimSpace(cfg.DefaultSubject) == "" {
		cfg.DefaultSubject = model.DefaultSubject
	}
	if strings.TrimSpace(cfg.DefaultBody) == "" {
		cfg.DefaultBody = model.DefaultBody
	}
	return &Engine{
		artifacts: artifacts,
		blobs:     blobs,
		transport: transport,
		cfg:       cfg,
		log:       log.With().Str("component", "dispatch").Logger(),
		now:       time.Now,
	}
}

// SetDirectory makes recipients resolve through the directory. Bindings to
// identities missing from it are skipped.
func (e *Engine) SetDirectory(d model.RecipientLookup) {
	e.directory = d
}

// SetRecorder stores every completed summary.
func (e *Engine) SetRecorder(r model.DispatchRecorder) {
	e.recorder = r
}

// Dispatch sends one message per binding using the shared template and
// returns a summary with one result per binding, in input order. It only
// returns an error when the call is structurally invalid, in which case
// nothing was sent.
func (e *Engine) Dispatch(ctx context.Context, bindings []model.Binding, tmpl model.MessageTemplate) (model.DispatchSummary, error) {
	if len(bindings) == 0 {
		return model.DispatchSummary{}, model.ErrEmptyBindingSet
	}
	if err := e.preflight(); err != nil {
		return model.DispatchSummary{}, err
	}
	if e.cfg.RejectDuplicates {
		if err := binding.Validate(bindings); err != nil {
			return model.DispatchSummary{}, err
		}
	}
	cc, err := tmpl.CarbonCopy.Normalize()
	if err != nil {
		return model.DispatchSummary{}, fmt.Errorf("cc: %w", err)
	}

	subject := orDefault(tmpl.Subject, e.cfg.DefaultSubject)
	body := orDefault(tmpl.Body, e.cfg.DefaultBody)

	summary := model.DispatchSummary{
		RunID:      uuid.NewString(),
		Generation: e.artifacts.Generation(),
		Subject:    subject,
		StartedAt:  e.now(),
		Results:    make([]model.DispatchResult, len(bindings)),
	}

	send := func(i int) {
		summary.Results[i] = e.deliver(ctx, bindings[i], subject, body, cc)
	}

	if e.cfg.Concurrency == 1 {
		for i := range bindings {
			send(i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(e.cfg.Concurrency)
		for i := range bindings {
			g.Go(func() error {
				send(i)
				return nil
			})
		}
		_ = g.Wait()
	}
	summary.FinishedAt = e.now()

	counts := summary.Counts()
	e.log.Info().
		Str("run", summary.RunID).
		Uint64("generation", summary.Generation).
		Int("sent", counts.Sent).
		Int("skipped", counts.Skipped).
		Int("failed", counts.Failed).
		Msg("dispatch finished")

	if e.recorder != nil {
		if err := e.recorder.RecordDispatch(context.WithoutCancel(ctx), summary); err != nil {
			e.log.Error().Err(err).Str("run", summary.RunID).Msg("recording dispatch failed")
		}
	}
	return summary, nil
}

func (e *Engine) preflight() error {
	if e.transport == nil {
		return fmt.Errorf("%w: no transport", model.ErrTransportMisconfigured)
	}
	if strings.TrimSpace(e.cfg.FromAddress) == "" {
		return fmt.Errorf("%w: sender address is empty", model.ErrTransportMisconfigured)
	}
	if p, ok := e.transport.(Preflighter); ok {
		if err := p.Preflight(); err != nil {
			if errors.Is(err, model.ErrTransportMisconfigured) {
				return err
			}
			return fmt.Errorf("%w: %v", model.ErrTransportMisconfigured, err)
		}
	}
	return nil
}

// deliver handles a single binding and never returns past its boundary.
func (e *Engine) deliver(ctx context.Context, b model.Binding, subject, body string, cc []string) (res model.DispatchResult) {
	res = model.DispatchResult{ArtifactID: b.ArtifactID, Recipient: strings.TrimSpace(b.Recipient)}
	defer func() { e.logResult(res) }()

	artifact, err := e.artifacts.Get(b.ArtifactID)
	if err != nil {
		res.Outcome = model.OutcomeSkippedMissingArtifact
		return res
	}

	if res.Recipient == "" {
		res.Outcome = model.OutcomeSkippedMissingRecipient
		return res
	}
	to, err := model.ValidateEmail(res.Recipient)
	if err != nil {
		return failed(res, err)
	}
	res.Recipient = to

	var toName string
	if e.directory != nil {
		r, err := e.directory.Lookup(ctx, to)
		if errors.Is(err, model.ErrRecipientNotFound) {
			res.Outcome = model.OutcomeSkippedMissingRecipient
			return res
		}
		if err != nil {
			return failed(res, fmt.Errorf("lookup recipient: %w", err))
		}
		toName = r.DisplayName
	}

	content, err := e.blobs.Get(ctx, artifact.Location)
	if err != nil {
		return failed(res, fmt.Errorf("read artifact: %w", err))
	}

	msg := &model.Message{
		FromName:    e.cfg.FromName,
		FromAddress: e.cfg.FromAddress,
		To:          to,
		ToName:      toName,
		Cc:          cc,
		Subject:     subject,
		Body:        body,
		Attachments: []model.Attachment{{
			Name:        artifact.Label,
			ContentType: model.PDFContentType,
			Content:     content,
		}},
	}
	if err := e.transport.Send(ctx, msg); err != nil {
		return failed(res, err)
	}
	res.Outcome = model.OutcomeSent
	return res
}

func (e *Engine) logResult(res model.DispatchResult) {
	ev := e.log.Debug()
	if res.Outcome == model.OutcomeFailed {
		ev = e.log.Warn().Str("reason", res.Reason)
	}
	ev.Str("artifact", res.ArtifactID).
		Str("recipient", res.Recipient).
		Str("outcome", string(res.Outcome)).
		Msg("binding processed")
}

func failed(res model.DispatchResult, err error) model.DispatchResult {
	res.Outcome = model.OutcomeFailed
	res.Reason = err.Error()
	return res
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
