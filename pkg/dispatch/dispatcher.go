package dispatch

import (
	"context"
	"fmt"

	"github.com/thomas-sabu/taskrouter/pkg/document"
	"github.com/thomas-sabu/taskrouter/pkg/llm"
	"github.com/thomas-sabu/taskrouter/pkg/registry"
)

// summarizerInstruction drives the general-document summarization path.
const summarizerInstruction = "You are a document summarizer. Produce a concise summary of the document text you are given, covering its key points and any figures or dates."

// execute runs the selected handler. The kind switch is exhaustive over the
// closed registry.Kind set; an unrecognized kind is a configuration fault,
// never a silent fall-through.
func (p *Pipeline) execute(
	ctx context.Context,
	rec registry.HandlerRecord,
	task string,
	file *File,
	intent document.Intent,
	groundFields string,
	keepFields bool,
) (Result, error) {
	switch rec.Kind {
	case registry.KindExtractionService:
		return p.executeExtraction(ctx, rec, file, intent, keepFields)
	case registry.KindConversational:
		return p.executeConversational(ctx, rec, task, groundFields)
	default:
		return Result{}, &ConfigurationError{
			Message: fmt.Sprintf("handler %q has unsupported kind %v", rec.Name, rec.Kind),
		}
	}
}

// executeExtraction runs the structured document extraction and flattens the
// returned fields into "field: value" lines. When keepFields is set, the
// flattened lines are retained under a continuation token so follow-up
// questions can be answered from them.
func (p *Pipeline) executeExtraction(
	ctx context.Context,
	rec registry.HandlerRecord,
	file *File,
	intent document.Intent,
	keepFields bool,
) (Result, error) {
	if file == nil {
		return Result{}, &ExecutionError{Message: "document or document type missing"}
	}
	if p.extractor == nil {
		return Result{}, &ConfigurationError{Message: "document extraction service not configured"}
	}

	schema, err := document.SchemaFor(intent)
	if err != nil {
		return Result{}, &ExecutionError{Message: "resolve extraction schema", Cause: err}
	}

	analysis, err := p.extractor.Analyze(ctx, file.Data, schema)
	if err != nil {
		return Result{}, &ExecutionError{Message: "document extraction failed", Cause: err}
	}

	output := document.Flatten(analysis, schema)
	res := Result{Status: StatusSuccess, Handler: rec.Name, Output: output}
	if keepFields && output != "" {
		res.Token = p.pending.Put(pendingEntry{filename: file.Filename, fields: output})
	}
	return res, nil
}

// executeConversational invokes the model executor with the handler's
// instruction as system context and returns the raw reply unmodified. When
// grounding fields are present, the system context constrains the model to
// answer only from them.
func (p *Pipeline) executeConversational(
	ctx context.Context,
	rec registry.HandlerRecord,
	task string,
	groundFields string,
) (Result, error) {
	system := rec.Instruction
	if groundFields != "" {
		system = groundedSystem(rec.Instruction, groundFields)
	}
	reply, err := p.complete(ctx, rec.ModelKey, system, task)
	if err != nil {
		return Result{}, err
	}
	return Result{Status: StatusSuccess, Handler: rec.Name, Output: reply}, nil
}

// groundedSystem constrains a conversational handler to previously extracted
// document fields. Outside knowledge is explicitly forbidden.
func groundedSystem(instruction, fields string) string {
	return fmt.Sprintf(`%s

Answer using ONLY the extracted document fields below. If the answer is not present in the fields, say you cannot find it. Do not use outside knowledge.

EXTRACTED FIELDS:
%s`, instruction, fields)
}

// summarizeGeneral finishes a confirmed general-document continuation:
// plain-text extraction followed by summarization with the default model.
func (p *Pipeline) summarizeGeneral(ctx context.Context, entry pendingEntry) (Result, error) {
	text, err := p.text.ExtractText(entry.data, entry.filename)
	if err != nil {
		return Result{}, &ExecutionError{Message: "text extraction failed", Cause: err}
	}
	summary, err := p.complete(ctx, p.cfg.DefaultModel, summarizerInstruction, text)
	if err != nil {
		return Result{}, err
	}
	return Result{Status: StatusSuccess, Output: summary}, nil
}

// complete resolves a model key and performs one blocking executor call.
// The pipeline makes at most one attempt per handler call; transient retry
// lives inside the provider adapters.
func (p *Pipeline) complete(ctx context.Context, modelKey, system, user string) (string, error) {
	mc, ok := p.cfg.Resolve(modelKey)
	if !ok {
		return "", &ConfigurationError{Message: fmt.Sprintf("model key %q not present in model registry", modelKey)}
	}
	client, err := p.newClient(mc.ModelID)
	if err != nil {
		return "", &ConfigurationError{Message: "create model client", Cause: err}
	}
	resp, err := client.Complete(ctx, llm.GenerateRequest{
		Model:       mc.ModelID,
		System:      system,
		MaxTokens:   mc.MaxTokens,
		Temperature: mc.Temperature,
		Messages:    []llm.Message{{Role: llm.RoleUser, Text: user}},
	})
	if err != nil {
		return "", &ExecutionError{Message: "model executor call failed", Cause: err}
	}
	return resp.Text, nil
}
