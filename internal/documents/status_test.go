package documents

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveStatusBalanceDriven(t *testing.T) {
	base := StatusInput{Category: CategoryInvoice, Total: 1000, Current: StatusValidated}

	in := base
	in.Outstanding = 600
	require.Equal(t, StatusPartiallyPaid, DeriveStatus(in))

	in.Outstanding = 0
	require.Equal(t, StatusPaid, DeriveStatus(in))

	in.Outstanding = 1000
	require.Equal(t, StatusValidated, DeriveStatus(in))
}

func TestDeriveStatusTerminalProtected(t *testing.T) {
	for _, terminal := range []Status{StatusCancelled, StatusArchived} {
		in := StatusInput{Category: CategoryInvoice, Total: 1000, Outstanding: 0, Current: terminal}
		require.Equal(t, terminal, DeriveStatus(in))
	}
}

func TestDeriveStatusZeroTotalNeverPaid(t *testing.T) {
	in := StatusInput{Category: CategoryInvoice, Total: 0, Outstanding: 0, Current: StatusValidated}
	require.Equal(t, StatusValidated, DeriveStatus(in))

	in.Category = CategoryQuote
	require.Equal(t, StatusQuoteUnconfirmed, DeriveStatus(in))
}

func TestDeriveStatusCategoryDefaults(t *testing.T) {
	in := StatusInput{Category: CategoryQuote, Total: 300, Outstanding: 300, Current: StatusQuoteUnconfirmed}
	require.Equal(t, StatusQuoteUnconfirmed, DeriveStatus(in))

	in = StatusInput{Category: CategoryOrder, Total: 300, Outstanding: 300, Current: StatusValidated, SalePending: true}
	require.Equal(t, StatusOrderPending, DeriveStatus(in))

	in.SalePending = false
	require.Equal(t, StatusValidated, DeriveStatus(in))
}

func TestDeriveStatusKeepsDraftUntilPaymentOrValidation(t *testing.T) {
	in := StatusInput{Category: CategoryInvoice, Total: 500, Outstanding: 500, Current: StatusDraft}
	require.Equal(t, StatusDraft, DeriveStatus(in))

	in.Outstanding = 250
	require.Equal(t, StatusPartiallyPaid, DeriveStatus(in))
}
