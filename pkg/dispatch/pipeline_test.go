package dispatch_test

import (
	"context"
	"strings"
	"testing"

	"github.com/thomas-sabu/taskrouter/pkg/config"
	"github.com/thomas-sabu/taskrouter/pkg/dispatch"
	"github.com/thomas-sabu/taskrouter/pkg/document"
	"github.com/thomas-sabu/taskrouter/pkg/llm"
	"github.com/thomas-sabu/taskrouter/pkg/registry"
)

// ─── fakes ────────────────────────────────────────────────────────────────────

// fakeLLM plays both the Supervisor and every conversational handler.
// Routing prompts get the scripted supervisorReply; every other call echoes
// its system instruction so tests can assert what context the model saw.
type fakeLLM struct {
	supervisorReply string
	err             error
	calls           []llm.GenerateRequest
}

func (f *fakeLLM) Complete(_ context.Context, req llm.GenerateRequest) (llm.GenerateResponse, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return llm.GenerateResponse{}, f.err
	}
	if len(req.Messages) > 0 && strings.Contains(req.Messages[0].Text, "AVAILABLE HANDLERS:") {
		return llm.GenerateResponse{Text: f.supervisorReply}, nil
	}
	return llm.GenerateResponse{Text: "reply<" + req.System + ">"}, nil
}

type fakeExtractor struct {
	result *document.AnalysisResult
	calls  int
}

func (f *fakeExtractor) Analyze(_ context.Context, data []byte, _ document.Schema) (*document.AnalysisResult, error) {
	f.calls++
	if string(data) == "bad" {
		return nil, &llm.LLMError{Code: 500, Message: "scan unreadable"}
	}
	return f.result, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Models: map[string]config.ModelConfig{
			"gpt-4.1-mini": {ModelID: "azure:gpt-4.1-mini", MaxTokens: 1000},
		},
		DefaultModel: "gpt-4.1-mini",
	}
}

func seededStore(t *testing.T) *registry.MemoryStore {
	t.Helper()
	store := registry.NewMemoryStore()
	recs := []registry.HandlerRecord{
		{Name: "Supervisor", Instruction: "Pick exactly one handler name, or NONE.", ModelKey: "gpt-4.1-mini"},
		{Name: "Writer", Instruction: "You write reports.", ModelKey: "gpt-4.1-mini"},
		{Name: "Analyst", Instruction: "You answer questions about documents.", ModelKey: "gpt-4.1-mini"},
		{Name: "DocExtractor", Instruction: "Extract structured fields.", ModelKey: "gpt-4.1-mini", Kind: registry.KindExtractionService},
	}
	for _, rec := range recs {
		if err := store.PutHandler(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func newPipeline(t *testing.T, model *fakeLLM, ex *fakeExtractor) *dispatch.Pipeline {
	t.Helper()
	opts := []dispatch.Option{
		dispatch.WithClientFactory(func(string) (llm.Client, error) { return model, nil }),
	}
	if ex != nil {
		opts = append(opts, dispatch.WithExtractor(ex))
	}
	return dispatch.New(testConfig(), seededStore(t), opts...)
}

func boolPtr(b bool) *bool { return &b }

// ─── routing ──────────────────────────────────────────────────────────────────

func TestDispatchRoutesToConversationalHandler(t *testing.T) {
	model := &fakeLLM{supervisorReply: "Writer"}
	p := newPipeline(t, model, nil)

	res := p.Dispatch(t.Context(), dispatch.Request{Task: "draft a status report"})
	if res.Status != dispatch.StatusSuccess {
		t.Fatalf("status = %q (%s)", res.Status, res.Message)
	}
	if res.Handler != "Writer" {
		t.Errorf("handler = %q, want Writer", res.Handler)
	}
	if !strings.Contains(res.Output, "You write reports.") {
		t.Errorf("output did not come from the Writer instruction: %q", res.Output)
	}
}

func TestDispatchSupervisorDeclines(t *testing.T) {
	p := newPipeline(t, &fakeLLM{supervisorReply: "NONE"}, nil)
	res := p.Dispatch(t.Context(), dispatch.Request{Task: "do something weird"})
	if res.Status != dispatch.StatusNoHandler {
		t.Fatalf("status = %q, want no_suitable_handler", res.Status)
	}
}

func TestDispatchUnknownSelectionPreservesRaw(t *testing.T) {
	p := newPipeline(t, &fakeLLM{supervisorReply: "TotallyMadeUp"}, nil)
	res := p.Dispatch(t.Context(), dispatch.Request{Task: "hello"})
	if res.Status != dispatch.StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
	if res.Raw != "TotallyMadeUp" {
		t.Errorf("raw = %q, want supervisor reply preserved", res.Raw)
	}
}

func TestDispatchSupervisorCannotSelectItself(t *testing.T) {
	p := newPipeline(t, &fakeLLM{supervisorReply: "Supervisor"}, nil)
	res := p.Dispatch(t.Context(), dispatch.Request{Task: "hello"})
	if res.Status != dispatch.StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
}

func TestDispatchTrimsSupervisorReply(t *testing.T) {
	p := newPipeline(t, &fakeLLM{supervisorReply: "  Writer\n"}, nil)
	res := p.Dispatch(t.Context(), dispatch.Request{Task: "write it up"})
	if res.Handler != "Writer" {
		t.Errorf("handler = %q, want Writer", res.Handler)
	}
}

// ─── validation and configuration ─────────────────────────────────────────────

func TestDispatchEmptyTask(t *testing.T) {
	p := newPipeline(t, &fakeLLM{}, nil)
	res := p.Dispatch(t.Context(), dispatch.Request{Task: "   "})
	if res.Status != dispatch.StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
}

func TestDispatchMissingSupervisor(t *testing.T) {
	store := registry.NewMemoryStore()
	_ = store.PutHandler(context.Background(), registry.HandlerRecord{
		Name: "Writer", Instruction: "w", ModelKey: "gpt-4.1-mini",
	})
	p := dispatch.New(testConfig(), store,
		dispatch.WithClientFactory(func(string) (llm.Client, error) { return &fakeLLM{}, nil }))

	res := p.Dispatch(t.Context(), dispatch.Request{Task: "anything"})
	if res.Status != dispatch.StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
	if !strings.Contains(res.Message, "Supervisor") {
		t.Errorf("message %q does not identify the missing handler", res.Message)
	}
}

func TestDispatchModelExecutorFailure(t *testing.T) {
	model := &fakeLLM{err: &llm.LLMError{Code: 500, Message: "provider down"}}
	p := newPipeline(t, model, nil)
	res := p.Dispatch(t.Context(), dispatch.Request{Task: "hello"})
	if res.Status != dispatch.StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
}

// ─── "no" short-circuit ───────────────────────────────────────────────────────

func TestNoEndsChatRegardlessOfEverything(t *testing.T) {
	// Even a broken registry must not matter: "no" is checked first.
	store := registry.NewMemoryStore()
	p := dispatch.New(testConfig(), store,
		dispatch.WithClientFactory(func(string) (llm.Client, error) { return &fakeLLM{}, nil }))

	for _, task := range []string{"no", "No", " NO "} {
		res := p.Dispatch(t.Context(), dispatch.Request{
			Task:  task,
			Files: []dispatch.File{{Filename: "doc.txt", Data: []byte("x")}},
		})
		if res.Status != dispatch.StatusSuccess {
			t.Fatalf("task %q: status = %q (%s)", task, res.Status, res.Message)
		}
		if res.Output != "You have ended the chat." {
			t.Errorf("task %q: output = %q", task, res.Output)
		}
	}
}

// ─── document paths ───────────────────────────────────────────────────────────

func invoiceExtractor() *fakeExtractor {
	return &fakeExtractor{result: &document.AnalysisResult{
		Fields: map[string]string{"InvoiceId": "INV-7", "VendorName": "Acme"},
	}}
}

func TestInvoiceSkipsConfirmation(t *testing.T) {
	ex := invoiceExtractor()
	p := newPipeline(t, &fakeLLM{supervisorReply: "DocExtractor"}, ex)

	res := p.Dispatch(t.Context(), dispatch.Request{
		Task:  "pull the vendor from this invoice",
		Files: []dispatch.File{{Filename: "inv.pdf", Data: []byte("pdf")}},
	})
	if res.Status != dispatch.StatusSuccess {
		t.Fatalf("status = %q (%s)", res.Status, res.Message)
	}
	if res.NeedsConfirmation {
		t.Error("invoice path must never enter the confirmation dialogue")
	}
	if ex.calls != 1 {
		t.Errorf("extractor calls = %d, want 1", ex.calls)
	}
	if !strings.Contains(res.Output, "VendorName: Acme") {
		t.Errorf("output missing flattened field:\n%s", res.Output)
	}
}

func TestExplicitDocTypeOverridesClassifier(t *testing.T) {
	ex := invoiceExtractor()
	p := newPipeline(t, &fakeLLM{supervisorReply: "DocExtractor"}, ex)

	// Task text says nothing invoice-like; the explicit type decides.
	res := p.Dispatch(t.Context(), dispatch.Request{
		Task:    "process this file",
		DocType: "invoice",
		Files:   []dispatch.File{{Filename: "f.pdf", Data: []byte("pdf")}},
	})
	if res.Status != dispatch.StatusSuccess || res.NeedsConfirmation {
		t.Fatalf("res = %+v", res)
	}
	if ex.calls != 1 {
		t.Errorf("extractor calls = %d, want 1", ex.calls)
	}
}

func TestExtractionWithoutServiceConfigured(t *testing.T) {
	p := newPipeline(t, &fakeLLM{supervisorReply: "DocExtractor"}, nil)
	res := p.Dispatch(t.Context(), dispatch.Request{
		Task:  "extract this invoice",
		Files: []dispatch.File{{Filename: "inv.pdf", Data: []byte("pdf")}},
	})
	if res.Status != dispatch.StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
}

// ─── confirmation flow ────────────────────────────────────────────────────────

func TestGeneralDocumentAsksForConfirmation(t *testing.T) {
	ex := invoiceExtractor()
	p := newPipeline(t, &fakeLLM{supervisorReply: "DocExtractor"}, ex)

	res := p.Dispatch(t.Context(), dispatch.Request{
		Task:  "summarize this document",
		Files: []dispatch.File{{Filename: "notes.txt", Data: []byte("meeting notes")}},
	})
	if res.Status != dispatch.StatusSuccess {
		t.Fatalf("status = %q (%s)", res.Status, res.Message)
	}
	if !res.NeedsConfirmation {
		t.Fatal("expected needs_confirmation for a general document")
	}
	if res.Token == "" {
		t.Fatal("expected a continuation token")
	}
	if ex.calls != 0 {
		t.Errorf("no extraction may happen before confirmation; calls = %d", ex.calls)
	}
}

func TestConfirmationYesExtractsAndSummarizes(t *testing.T) {
	model := &fakeLLM{supervisorReply: "DocExtractor"}
	p := newPipeline(t, model, nil)

	first := p.Dispatch(t.Context(), dispatch.Request{
		Task:  "summarize this document",
		Files: []dispatch.File{{Filename: "notes.txt", Data: []byte("quarterly planning notes")}},
	})
	if !first.NeedsConfirmation {
		t.Fatalf("first = %+v", first)
	}

	second := p.Dispatch(t.Context(), dispatch.Request{Task: "yes", Token: first.Token})
	if second.Status != dispatch.StatusSuccess {
		t.Fatalf("status = %q (%s)", second.Status, second.Message)
	}
	if second.NeedsConfirmation {
		t.Error("confirmed request must not ask again")
	}
	if !strings.Contains(second.Output, "document summarizer") {
		t.Errorf("output did not come from the summarizer instruction: %q", second.Output)
	}

	// The summarizer must have seen the extracted document text.
	last := model.calls[len(model.calls)-1]
	if !strings.Contains(last.Messages[0].Text, "quarterly planning notes") {
		t.Errorf("summarizer prompt missing document text: %q", last.Messages[0].Text)
	}
}

func TestConfirmationExplicitBooleanConfirms(t *testing.T) {
	p := newPipeline(t, &fakeLLM{supervisorReply: "NONE"}, nil)
	first := p.Dispatch(t.Context(), dispatch.Request{
		Task:  "summarize this document",
		Files: []dispatch.File{{Filename: "notes.md", Data: []byte("# agenda")}},
	})
	second := p.Dispatch(t.Context(), dispatch.Request{
		Task:    "summarize this document",
		Token:   first.Token,
		Confirm: boolPtr(true),
	})
	if second.Status != dispatch.StatusSuccess || second.NeedsConfirmation {
		t.Fatalf("second = %+v", second)
	}
}

func TestConfirmationNonDecisionAsksAgain(t *testing.T) {
	p := newPipeline(t, &fakeLLM{}, nil)
	first := p.Dispatch(t.Context(), dispatch.Request{
		Task:  "summarize this document",
		Files: []dispatch.File{{Filename: "notes.txt", Data: []byte("x")}},
	})
	second := p.Dispatch(t.Context(), dispatch.Request{Task: "hmm what", Token: first.Token})
	if !second.NeedsConfirmation {
		t.Fatal("expected the pipeline to ask again")
	}
	if second.Token != first.Token {
		t.Errorf("token changed across the re-ask: %q vs %q", first.Token, second.Token)
	}
}

func TestConfirmationDeclineDiscardsDocument(t *testing.T) {
	p := newPipeline(t, &fakeLLM{}, nil)
	first := p.Dispatch(t.Context(), dispatch.Request{
		Task:  "summarize this document",
		Files: []dispatch.File{{Filename: "notes.txt", Data: []byte("x")}},
	})

	declined := p.Dispatch(t.Context(), dispatch.Request{
		Task:    "summarize this document",
		Token:   first.Token,
		Confirm: boolPtr(false),
	})
	if declined.Output != "You have ended the chat." {
		t.Fatalf("declined output = %q", declined.Output)
	}

	// The pending document is gone; the token no longer resolves.
	replay := p.Dispatch(t.Context(), dispatch.Request{Task: "yes", Token: first.Token})
	if replay.Status != dispatch.StatusError {
		t.Errorf("replay after decline: status = %q, want error", replay.Status)
	}
}

func TestUnknownTokenRejected(t *testing.T) {
	p := newPipeline(t, &fakeLLM{}, nil)
	res := p.Dispatch(t.Context(), dispatch.Request{Task: "yes", Token: "not-a-real-token"})
	if res.Status != dispatch.StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
}

// ─── grounded follow-up questions ─────────────────────────────────────────────

func TestExtractionResultAnswersFollowUpFromFields(t *testing.T) {
	model := &fakeLLM{supervisorReply: "DocExtractor"}
	p := newPipeline(t, model, invoiceExtractor())

	first := p.Dispatch(t.Context(), dispatch.Request{
		Task:  "extract this invoice",
		Files: []dispatch.File{{Filename: "inv.pdf", Data: []byte("pdf")}},
	})
	if first.Status != dispatch.StatusSuccess || first.Token == "" {
		t.Fatalf("first = %+v", first)
	}

	model.supervisorReply = "Analyst"
	second := p.Dispatch(t.Context(), dispatch.Request{
		Task:  "who is the vendor?",
		Token: first.Token,
	})
	if second.Status != dispatch.StatusSuccess {
		t.Fatalf("second = %+v", second)
	}
	if second.Handler != "Analyst" {
		t.Errorf("handler = %q, want Analyst", second.Handler)
	}
	// The Analyst's system context must be grounded on the extracted lines.
	last := model.calls[len(model.calls)-1]
	if !strings.Contains(last.System, "EXTRACTED FIELDS") || !strings.Contains(last.System, "VendorName: Acme") {
		t.Errorf("grounding missing from system context:\n%s", last.System)
	}
	if second.Token != first.Token {
		t.Error("token should survive for further questions")
	}
}

// ─── multi-file aggregation ───────────────────────────────────────────────────

func TestAggregateTwoFilesMergesInUploadOrder(t *testing.T) {
	p := newPipeline(t, &fakeLLM{supervisorReply: "DocExtractor"}, invoiceExtractor())

	res := p.Dispatch(t.Context(), dispatch.Request{
		Task: "pull the vendor from this invoice",
		Files: []dispatch.File{
			{Filename: "a-invoice.pdf", Data: []byte("pdf")},
			{Filename: "b-notes.txt", Data: []byte("notes")},
		},
	})
	if res.Status != dispatch.StatusSuccess {
		t.Fatalf("status = %q (%s)", res.Status, res.Message)
	}
	ai := strings.Index(res.Output, "=== a-invoice.pdf ===")
	bi := strings.Index(res.Output, "=== b-notes.txt ===")
	if ai < 0 || bi < 0 {
		t.Fatalf("missing filename headers:\n%s", res.Output)
	}
	if ai > bi {
		t.Errorf("sections out of upload order:\n%s", res.Output)
	}
}

func TestAggregateConfirmationPropagates(t *testing.T) {
	// General task: both files enter the confirmation path, and the
	// combined result must request confirmation.
	p := newPipeline(t, &fakeLLM{supervisorReply: "NONE"}, nil)
	res := p.Dispatch(t.Context(), dispatch.Request{
		Task: "summarize this document",
		Files: []dispatch.File{
			{Filename: "one.txt", Data: []byte("x")},
			{Filename: "two.txt", Data: []byte("y")},
		},
	})
	if res.Status != dispatch.StatusSuccess {
		t.Fatalf("status = %q (%s)", res.Status, res.Message)
	}
	if !res.NeedsConfirmation {
		t.Error("aggregate must need confirmation when any constituent does")
	}
	if !strings.Contains(res.Output, "=== one.txt ===") || !strings.Contains(res.Output, "=== two.txt ===") {
		t.Errorf("missing section headers:\n%s", res.Output)
	}
	if !strings.Contains(res.Output, "confirmation_token:") {
		t.Errorf("sections should carry their continuation tokens:\n%s", res.Output)
	}
}

func TestAggregateIsolatesPerFileFailure(t *testing.T) {
	p := newPipeline(t, &fakeLLM{supervisorReply: "DocExtractor"}, invoiceExtractor())

	res := p.Dispatch(t.Context(), dispatch.Request{
		Task: "extract this invoice",
		Files: []dispatch.File{
			{Filename: "good.pdf", Data: []byte("pdf")},
			{Filename: "bad.pdf", Data: []byte("bad")}, // fake extractor fails on this
		},
	})
	if res.Status != dispatch.StatusSuccess {
		t.Fatalf("one bad file must not sink the batch: %+v", res)
	}
	if !strings.Contains(res.Output, "InvoiceId: INV-7") {
		t.Errorf("good file's output missing:\n%s", res.Output)
	}
	if !strings.Contains(res.Output, "=== bad.pdf ===\nerror:") {
		t.Errorf("bad file's failure not isolated into its section:\n%s", res.Output)
	}
}
