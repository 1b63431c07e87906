// Package document holds the document-side collaborators of the dispatch
// pipeline: intent classification, extraction schemas, field flattening, and
// the extraction/text adapters.
package document

import "strings"

// Intent is the classifier's guess at which structured schema a document
// should be extracted with.
type Intent string

const (
	IntentInvoice  Intent = "invoice"
	IntentReceipt  Intent = "receipt"
	IntentIdentity Intent = "identity"
	IntentGeneral  Intent = "general"
)

// Keyword vocabularies, checked in order. The classifier is intentionally
// crude: deterministic substring matching keeps document routing fast and
// free of model calls. Invoice wins over receipt when both match.
var (
	invoiceTerms = []string{
		"invoice", "vendor", "billing", "bill", "tax",
		"purchase order", "due date", "amount due",
	}
	receiptTerms = []string{
		"receipt", "merchant", "tip", "subtotal", "total paid",
	}
	identityTerms = []string{
		"passport", "driver's license", "drivers license",
		"id card", "identity document", "date of birth",
	}
)

// Classify maps free task text to a document intent. Anything that matches
// no vocabulary is general.
func Classify(task string) Intent {
	lower := strings.ToLower(task)
	if containsAny(lower, invoiceTerms) {
		return IntentInvoice
	}
	if containsAny(lower, receiptTerms) {
		return IntentReceipt
	}
	if containsAny(lower, identityTerms) {
		return IntentIdentity
	}
	return IntentGeneral
}

// ParseIntent validates a caller-supplied document type string.
func ParseIntent(s string) (Intent, bool) {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentInvoice:
		return IntentInvoice, true
	case IntentReceipt:
		return IntentReceipt, true
	case IntentIdentity:
		return IntentIdentity, true
	case IntentGeneral:
		return IntentGeneral, true
	}
	return "", false
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}
