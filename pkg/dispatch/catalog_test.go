package dispatch

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/thomas-sabu/taskrouter/pkg/config"
	"github.com/thomas-sabu/taskrouter/pkg/registry"
)

func buildSet(t *testing.T, recs ...registry.HandlerRecord) *registry.Set {
	t.Helper()
	store := registry.NewMemoryStore()
	for _, rec := range recs {
		if err := store.PutHandler(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}
	cfg := &config.Config{Models: map[string]config.ModelConfig{
		"gpt-4.1-mini": {ModelID: "azure:gpt-4.1-mini"},
	}}
	set, err := registry.Load(context.Background(), store, cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return set
}

func TestBuildCatalogExcludesSupervisor(t *testing.T) {
	set := buildSet(t,
		registry.HandlerRecord{Name: "Supervisor", Instruction: "route", ModelKey: "gpt-4.1-mini"},
		registry.HandlerRecord{Name: "Writer", Instruction: "write reports", ModelKey: "gpt-4.1-mini"},
	)
	catalog := buildCatalog(set, false)
	if strings.Contains(catalog, "Supervisor") {
		t.Errorf("catalog lists the Supervisor:\n%s", catalog)
	}
	if !strings.Contains(catalog, "- Writer: write reports") {
		t.Errorf("catalog missing Writer line:\n%s", catalog)
	}
}

func TestBuildCatalogHidesExtractionWithoutFile(t *testing.T) {
	set := buildSet(t,
		registry.HandlerRecord{Name: "Supervisor", Instruction: "route", ModelKey: "gpt-4.1-mini"},
		registry.HandlerRecord{Name: "DocExtractor", Instruction: "extract fields", ModelKey: "gpt-4.1-mini", Kind: registry.KindExtractionService},
	)
	if got := buildCatalog(set, false); strings.Contains(got, "DocExtractor") {
		t.Errorf("extraction handler offered without a file:\n%s", got)
	}
	if got := buildCatalog(set, true); !strings.Contains(got, "DocExtractor") {
		t.Errorf("extraction handler missing with a file:\n%s", got)
	}
}

func TestBuildCatalogCollapsesNewlines(t *testing.T) {
	set := buildSet(t,
		registry.HandlerRecord{Name: "Supervisor", Instruction: "route", ModelKey: "gpt-4.1-mini"},
		registry.HandlerRecord{Name: "Writer", Instruction: "write\nlong\nreports", ModelKey: "gpt-4.1-mini"},
	)
	catalog := buildCatalog(set, false)
	if catalog != "- Writer: write long reports" {
		t.Errorf("catalog = %q", catalog)
	}
}

func TestBuildCatalogKeepsInsertionOrder(t *testing.T) {
	set := buildSet(t,
		registry.HandlerRecord{Name: "Supervisor", Instruction: "route", ModelKey: "gpt-4.1-mini"},
		registry.HandlerRecord{Name: "Zeta", Instruction: "z", ModelKey: "gpt-4.1-mini"},
		registry.HandlerRecord{Name: "Alpha", Instruction: "a", ModelKey: "gpt-4.1-mini"},
	)
	catalog := buildCatalog(set, false)
	if strings.Index(catalog, "Zeta") > strings.Index(catalog, "Alpha") {
		t.Errorf("catalog reordered handlers:\n%s", catalog)
	}
}

func TestComposeRoutingPrompt(t *testing.T) {
	prompt := composeRoutingPrompt("summarize q3", true, "invoice", "- A: a")
	for _, want := range []string{"USER TASK:\nsummarize q3", "FILE_UPLOADED:\nYES", "DOCUMENT_TYPE:\ninvoice", "- A: a"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	prompt = composeRoutingPrompt("chat", false, "", "")
	if !strings.Contains(prompt, "FILE_UPLOADED:\nNO") || !strings.Contains(prompt, "DOCUMENT_TYPE:\nnone") {
		t.Errorf("no-file prompt wrong:\n%s", prompt)
	}
}

// ─── Confirmation state tests ─────────────────────────────────────────────────

func TestPendingStoreExpiry(t *testing.T) {
	s := newPendingStore(time.Minute)
	base := time.Now()
	s.now = func() time.Time { return base }

	token := s.Put(pendingEntry{filename: "doc.txt", data: []byte("x")})
	if _, ok := s.Get(token); !ok {
		t.Fatal("entry should be retrievable before expiry")
	}

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	if _, ok := s.Get(token); ok {
		t.Fatal("entry should have expired")
	}
}

func TestIsYesIsNo(t *testing.T) {
	for _, yes := range []string{"yes", "Y", " YES ", "y"} {
		if !isYes(yes) {
			t.Errorf("isYes(%q) = false", yes)
		}
	}
	for _, no := range []string{"no", "No", " NO "} {
		if !isNo(no) {
			t.Errorf("isNo(%q) = false", no)
		}
	}
	if isYes("yes please") || isNo("nope") {
		t.Error("partial matches must not count as decisions")
	}
}
