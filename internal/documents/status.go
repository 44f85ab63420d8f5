package documents

// StatusInput carries everything status derivation may look at.
type StatusInput struct {
	Category    Category
	Total       float64
	Outstanding float64
	Current     Status
	SalePending bool
}

// DeriveStatus maps balance and category onto the lifecycle status. It is
// called from one place after every payment-ledger mutation.
//
// CANCELLED and ARCHIVED are terminal: no balance-driven transition touches
// them. A zero-total document never resolves to PAID; a free document is not
// a payment event, so it keeps its category default.
func DeriveStatus(in StatusInput) Status {
	if in.Current.Terminal() {
		return in.Current
	}
	switch {
	case in.Total > 0 && in.Outstanding <= 0:
		return StatusPaid
	case in.Outstanding > 0 && in.Outstanding < in.Total:
		return StatusPartiallyPaid
	}
	// No payments applied: outstanding equals total (zero-total included).
	if in.Current == StatusDraft {
		return StatusDraft
	}
	return defaultStatus(in.Category, in.SalePending)
}

func defaultStatus(c Category, salePending bool) Status {
	switch c {
	case CategoryQuote:
		return StatusQuoteUnconfirmed
	case CategoryOrder:
		if salePending {
			return StatusOrderPending
		}
		return StatusValidated
	default:
		return StatusValidated
	}
}
