package perf

import (
	"testing"

	"github.com/optisass/optisass-core/internal/documents"
)

// The classifier runs on every ledger mutation and every aggregation row, so
// it has to stay allocation-light even on accented legacy values.
func BenchmarkClassify(b *testing.B) {
	inputs := []documents.ClassifierInput{
		{Number: "FAC-2024-85", DeclaredType: "Facture", Status: "validée"},
		{Number: "85/2024", DeclaredType: "", Status: ""},
		{Number: "BC-1042", DeclaredType: "bon_de_commande", Status: "en cours"},
		{Number: "", DeclaredType: "Devis", Status: "brouillon"},
		{Number: "", DeclaredType: "", Status: "Vente sans facture", HasPayments: true},
		{Number: "", DeclaredType: "AVOIR", Status: ""},
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = documents.Classify(inputs[i%len(inputs)])
	}
}

func BenchmarkDeriveStatus(b *testing.B) {
	in := documents.StatusInput{
		Category:    documents.CategoryInvoice,
		Total:       900,
		Outstanding: 400,
		Current:     documents.StatusValidated,
	}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = documents.DeriveStatus(in)
	}
}
