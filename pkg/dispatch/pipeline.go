// Package dispatch implements the routing and dispatch pipeline: it builds a
// catalog of available handlers, asks the Supervisor to pick one, classifies
// document intent when a file is present, manages the one-step confirmation
// dialogue for general documents, and aggregates per-file results.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/thomas-sabu/taskrouter/pkg/config"
	"github.com/thomas-sabu/taskrouter/pkg/document"
	"github.com/thomas-sabu/taskrouter/pkg/llm"
	"github.com/thomas-sabu/taskrouter/pkg/registry"
)

// File is one uploaded document.
type File struct {
	Filename string
	Data     []byte
}

// Request is the pipeline input. Task is required. Token and Confirm carry
// the confirmation continuation: a caller that received
// needs_confirmation=true echoes the Token back with an explicit decision.
// Task text "yes"/"y" (or "no") is accepted in place of Confirm when the
// Token is present.
type Request struct {
	Task    string
	Files   []File
	DocType string // optional explicit document type, overrides classification
	Token   string
	Confirm *bool
}

// Pipeline is the dispatch core. It is synchronous and stateless per request
// apart from the continuation store; concurrent requests are safe because no
// request mutates shared state.
type Pipeline struct {
	cfg       *config.Config
	store     registry.Store
	newClient func(modelID string) (llm.Client, error)
	extractor document.Extractor
	text      document.TextExtractor
	pending   *pendingStore
}

// Option customizes a Pipeline, mainly to substitute collaborators in tests.
type Option func(*Pipeline)

// WithClientFactory replaces the model-client constructor.
func WithClientFactory(f func(modelID string) (llm.Client, error)) Option {
	return func(p *Pipeline) { p.newClient = f }
}

// WithExtractor replaces the document extraction collaborator.
func WithExtractor(e document.Extractor) Option {
	return func(p *Pipeline) { p.extractor = e }
}

// WithTextExtractor replaces the plain-text extraction collaborator.
func WithTextExtractor(e document.TextExtractor) Option {
	return func(p *Pipeline) { p.text = e }
}

// WithPendingTTL overrides how long confirmation continuations are retained.
func WithPendingTTL(ttl time.Duration) Option {
	return func(p *Pipeline) { p.pending = newPendingStore(ttl) }
}

// New builds a Pipeline over the given config and handler store. When the
// config carries document-intelligence credentials, the Azure extractor is
// wired in automatically.
func New(cfg *config.Config, store registry.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		store:     store,
		newClient: llm.NewClient,
		text:      document.PlainTextExtractor{},
		pending:   newPendingStore(0),
	}
	if cfg.DocIntel.Endpoint != "" && cfg.DocIntel.APIKey != "" {
		if ex, err := document.NewAzureExtractor(cfg.DocIntel.Endpoint, cfg.DocIntel.APIKey); err == nil {
			p.extractor = ex
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dispatch runs the full pipeline for one request. It always returns a
// well-formed Result; collaborator failures surface as StatusError, never as
// a fault.
func (p *Pipeline) Dispatch(ctx context.Context, req Request) Result {
	res, err := p.dispatch(ctx, req)
	if err != nil {
		slog.Warn("dispatch failed", "error", err)
		return resultFromError(err)
	}
	return res
}

func (p *Pipeline) dispatch(ctx context.Context, req Request) (Result, error) {
	task := strings.TrimSpace(req.Task)
	if task == "" {
		return Result{}, &ValidationError{Message: "Please provide a task."}
	}

	// The "no" branch has the highest priority of the whole pipeline: it
	// terminates the exchange regardless of files, tokens, or registry
	// content. An explicit confirm=false does the same.
	declined := req.Confirm != nil && !*req.Confirm
	if isNo(task) || declined {
		if req.Token != "" {
			p.pending.Delete(req.Token)
		}
		return Result{Status: StatusSuccess, Output: chatEndedOutput}, nil
	}

	if req.Token != "" {
		return p.resumeContinuation(ctx, req, task)
	}

	set, err := p.loadSet(ctx)
	if err != nil {
		return Result{}, err
	}

	switch len(req.Files) {
	case 0:
		rec, err := p.selectHandler(ctx, set, task, false, "")
		if err != nil {
			return Result{}, err
		}
		return p.execute(ctx, rec, task, nil, "", "", false)
	case 1:
		return p.dispatchFile(ctx, set, task, req.Files[0], req.DocType, true)
	default:
		return p.aggregate(ctx, set, task, req.Files, req.DocType)
	}
}

// resumeContinuation handles a request that carries a continuation token:
// either the pending confirmation of a general document, or a grounded
// follow-up question over previously extracted fields.
func (p *Pipeline) resumeContinuation(ctx context.Context, req Request, task string) (Result, error) {
	entry, ok := p.pending.Get(req.Token)
	if !ok {
		return Result{}, &ValidationError{Message: "confirmation token is unknown or expired"}
	}

	if entry.awaitingConfirm() {
		confirmed := (req.Confirm != nil && *req.Confirm) || isYes(task)
		if !confirmed {
			// Not a decision; ask again and keep the document.
			return Result{
				Status:            StatusSuccess,
				Output:            confirmPrompt,
				NeedsConfirmation: true,
				Token:             req.Token,
			}, nil
		}
		p.pending.Delete(req.Token)
		return p.summarizeGeneral(ctx, entry)
	}

	// Extracted fields exist: route the question as a no-file request and
	// ground the selected conversational handler on those fields.
	set, err := p.loadSet(ctx)
	if err != nil {
		return Result{}, err
	}
	rec, err := p.selectHandler(ctx, set, task, false, "")
	if err != nil {
		return Result{}, err
	}
	res, err := p.execute(ctx, rec, task, nil, "", entry.fields, false)
	if err != nil {
		return Result{}, err
	}
	res.Token = req.Token // the fields stay available for further questions
	return res, nil
}

// dispatchFile runs the single-file pipeline: classify intent, gate general
// documents behind confirmation, otherwise route and execute.
func (p *Pipeline) dispatchFile(
	ctx context.Context,
	set *registry.Set,
	task string,
	file File,
	docType string,
	keepFields bool,
) (Result, error) {
	var intent document.Intent
	if docType != "" {
		v, ok := document.ParseIntent(docType)
		if !ok {
			return Result{}, &ValidationError{Message: "unknown document type " + docType}
		}
		intent = v
	} else {
		intent = document.Classify(task)
	}

	if intent == document.IntentGeneral {
		token := p.pending.Put(pendingEntry{filename: file.Filename, data: file.Data})
		slog.Info("general document pending confirmation", "file", file.Filename)
		return Result{
			Status:            StatusSuccess,
			Output:            confirmPrompt,
			NeedsConfirmation: true,
			Token:             token,
		}, nil
	}

	rec, err := p.selectHandler(ctx, set, task, true, intent)
	if err != nil {
		return Result{}, err
	}
	return p.execute(ctx, rec, task, &file, intent, "", keepFields)
}

// loadSet re-reads the handler store. No caching: the pipeline always
// reflects the latest registry state, at the cost of a store read per
// request.
func (p *Pipeline) loadSet(ctx context.Context) (*registry.Set, error) {
	set, err := registry.Load(ctx, p.store, p.cfg)
	if err != nil {
		if errors.Is(err, registry.ErrSupervisorMissing) {
			return nil, &ConfigurationError{Message: "Supervisor handler missing in store", Cause: err}
		}
		return nil, &ExecutionError{Message: "handler store unavailable", Cause: err}
	}
	return set, nil
}
