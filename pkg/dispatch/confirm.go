package dispatch

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultPendingTTL = 15 * time.Minute

// confirmPrompt is the fixed question returned when a general document needs
// the user's go-ahead before text extraction.
const confirmPrompt = `This looks like a general document. Reply "yes" to extract its text and summarize it, or "no" to end the chat.`

// chatEndedOutput is the terminal reply for an explicit "no".
const chatEndedOutput = "You have ended the chat."

// pendingEntry is server-side continuation state referenced by an opaque
// token. Either the raw document awaiting a confirmation decision, or the
// flattened field lines of a finished extraction kept for grounded
// follow-up questions.
type pendingEntry struct {
	filename string
	data     []byte
	fields   string
	created  time.Time
}

func (e pendingEntry) awaitingConfirm() bool { return e.fields == "" }

// pendingStore holds continuation state between requests. Entries expire
// after the TTL; expiry is enforced on access, not by a background sweeper.
type pendingStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]pendingEntry
}

func newPendingStore(ttl time.Duration) *pendingStore {
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	return &pendingStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]pendingEntry),
	}
}

// Put stores an entry and returns its continuation token.
func (s *pendingStore) Put(entry pendingEntry) string {
	token := uuid.NewString()
	entry.created = s.now()
	s.mu.Lock()
	s.entries[token] = entry
	s.mu.Unlock()
	return token
}

// Get returns the entry for a token, dropping it if expired.
func (s *pendingStore) Get(token string) (pendingEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[token]
	if !ok {
		return pendingEntry{}, false
	}
	if s.now().Sub(entry.created) > s.ttl {
		delete(s.entries, token)
		return pendingEntry{}, false
	}
	return entry, true
}

// Delete discards a token's entry.
func (s *pendingStore) Delete(token string) {
	s.mu.Lock()
	delete(s.entries, token)
	s.mu.Unlock()
}

// isYes and isNo recognize the textual confirmation protocol. The trimmed,
// case-insensitive strings "yes"/"y" confirm; "no" declines.
func isYes(task string) bool {
	t := strings.ToLower(strings.TrimSpace(task))
	return t == "yes" || t == "y"
}

func isNo(task string) bool {
	return strings.EqualFold(strings.TrimSpace(task), "no")
}
