package documents

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyPrecedence(t *testing.T) {
	cases := []struct {
		name string
		in   ClassifierInput
		want Category
	}{
		{
			name: "credit note wins over everything",
			in:   ClassifierInput{Number: "FAC-99", DeclaredType: "AVOIR", Status: "vente sans facture", HasPayments: true},
			want: CategoryCreditNote,
		},
		{
			name: "accented credit note synonym",
			in:   ClassifierInput{DeclaredType: "Note de crédit"},
			want: CategoryCreditNote,
		},
		{
			name: "sale pending invoice beats invoice number",
			in:   ClassifierInput{Number: "FAC-204", DeclaredType: "FACTURE", Status: "vente sans facture"},
			want: CategoryOrder,
		},
		{
			name: "declared order type",
			in:   ClassifierInput{Number: "FAC-12", DeclaredType: "bon_de_commande"},
			want: CategoryOrder,
		},
		{
			name: "order number prefix",
			in:   ClassifierInput{Number: "BC-2031", DeclaredType: ""},
			want: CategoryOrder,
		},
		{
			name: "invoice number prefix",
			in:   ClassifierInput{Number: "FAC-85", DeclaredType: ""},
			want: CategoryInvoice,
		},
		{
			name: "sequence/year fiscal number",
			in:   ClassifierInput{Number: "85/2024", DeclaredType: ""},
			want: CategoryInvoice,
		},
		{
			name: "declared invoice type without number",
			in:   ClassifierInput{Number: "", DeclaredType: "Facturé"},
			want: CategoryInvoice,
		},
		{
			name: "paid but unnumbered sale stays an order",
			in:   ClassifierInput{Number: "TMP-7", DeclaredType: "", HasPayments: true},
			want: CategoryOrder,
		},
		{
			name: "nothing matches falls back to quote",
			in:   ClassifierInput{Number: "TMP-7", DeclaredType: "", Status: "brouillon"},
			want: CategoryQuote,
		},
		{
			name: "legacy empty everything",
			in:   ClassifierInput{},
			want: CategoryQuote,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.in))
		})
	}
}

func TestClassifyDeterministicAndExhaustive(t *testing.T) {
	numbers := []string{"", "FAC-1", "BC-1", "85/2024", "TMP-9"}
	types := []string{"", "FACTURE", "BON_COMMANDE", "DEVIS", "AVOIR", "legacy"}
	statuses := []string{"", "vente sans facture", "validée", "brouillon"}

	for _, n := range numbers {
		for _, ty := range types {
			for _, st := range statuses {
				for _, paid := range []bool{false, true} {
					in := ClassifierInput{Number: n, DeclaredType: ty, Status: st, HasPayments: paid}
					first := Classify(in)
					require.True(t, first.Valid(), "input %+v produced unknown category %q", in, first)
					require.Equal(t, first, Classify(in), "input %+v not deterministic", in)
				}
			}
		}
	}
}

func TestClassifySequenceYearBounds(t *testing.T) {
	require.Equal(t, CategoryInvoice, Classify(ClassifierInput{Number: "1/1999"}))
	require.Equal(t, CategoryInvoice, Classify(ClassifierInput{Number: "104 / 2023"}))
	require.Equal(t, CategoryQuote, Classify(ClassifierInput{Number: "104/23"}))
	require.Equal(t, CategoryQuote, Classify(ClassifierInput{Number: "/2023"}))
}

func TestNormalizeTag(t *testing.T) {
	require.Equal(t, "BON DE COMMANDE", normalizeTag("  bon_de-commande "))
	require.Equal(t, "VALIDEE", normalizeTag("Validée"))
	require.Equal(t, "", normalizeTag("   "))
}
