package documents

import (
	"regexp"
	"strings"
)

// Legacy records disagree between number prefix, declared type and status, so
// the precedence below is fixed: credit note, then sale-pending status, then
// order signals, then invoice signals, then paid-but-unnumbered orders, then
// quote. Classify is the only place a category may be derived; every caller
// goes through it so two call sites can never diverge on the same document.

// ClassifierInput carries the three legacy signals plus the payment flag.
type ClassifierInput struct {
	Number       string
	DeclaredType string
	Status       string
	HasPayments  bool
}

const (
	invoicePrefix = "FAC"
	orderPrefix   = "BC"
)

// seqYearPattern matches fiscal "sequence/year" numbers such as "85/2024".
var seqYearPattern = regexp.MustCompile(`^\d+\s*/\s*(19|20)\d{2}$`)

// Historical synonyms observed in the legacy data, normalised by normalizeTag.
var (
	creditNoteTypes = map[string]bool{
		"AVOIR":          true,
		"CREDIT NOTE":    true,
		"NOTE DE CREDIT": true,
	}
	orderTypes = map[string]bool{
		"BON COMMANDE":    true,
		"BON DE COMMANDE": true,
		"BC":              true,
		"COMMANDE":        true,
		"ORDER":           true,
	}
	invoiceTypes = map[string]bool{
		"FACTURE": true,
		"FAC":     true,
		"FACT":    true,
		"INVOICE": true,
	}
	salePendingStatuses = map[string]bool{
		"VENTE SANS FACTURE":          true,
		"VENTE EN ATTENTE DE FACTURE": true,
		"EN ATTENTE DE FACTURATION":   true,
		"ATTENTE FACTURE":             true,
		"SALE PENDING INVOICE":        true,
	}
)

// Classify maps a document's legacy signals onto exactly one category.
// It is a pure function: identical inputs always produce the same category,
// and the four categories partition every input with no gap.
func Classify(in ClassifierInput) Category {
	declared := normalizeTag(in.DeclaredType)
	if creditNoteTypes[declared] {
		return CategoryCreditNote
	}
	if IsSalePendingStatus(in.Status) {
		return CategoryOrder
	}
	if orderTypes[declared] || hasOrderNumber(in.Number) {
		return CategoryOrder
	}
	if hasInvoiceNumber(in.Number) || invoiceTypes[declared] {
		return CategoryInvoice
	}
	if in.HasPayments {
		// An unofficial sale that has been paid stays an order until
		// explicitly promoted to an invoice.
		return CategoryOrder
	}
	return CategoryQuote
}

// ClassifyDocument applies Classify to a loaded document.
func ClassifyDocument(doc *Document) Category {
	return Classify(ClassifierInput{
		Number:       doc.Number,
		DeclaredType: doc.DeclaredType,
		Status:       doc.RawStatus,
		HasPayments:  doc.HasPayments,
	})
}

// IsSalePendingStatus reports whether the raw status marks a sale recorded
// ahead of its formal invoice.
func IsSalePendingStatus(raw string) bool {
	return salePendingStatuses[normalizeTag(raw)]
}

func hasInvoiceNumber(number string) bool {
	n := normalizeNumber(number)
	return strings.HasPrefix(n, invoicePrefix) || seqYearPattern.MatchString(n)
}

func hasOrderNumber(number string) bool {
	return strings.HasPrefix(normalizeNumber(number), orderPrefix)
}

// canonicalDeclaredType returns the declared-type value written back on
// reclassification so Classify deterministically yields the target category.
func canonicalDeclaredType(c Category) string {
	switch c {
	case CategoryInvoice:
		return "FACTURE"
	case CategoryOrder:
		return "BON_COMMANDE"
	case CategoryQuote:
		return "DEVIS"
	case CategoryCreditNote:
		return "AVOIR"
	}
	return ""
}
