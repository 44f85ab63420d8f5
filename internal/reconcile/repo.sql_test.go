package reconcile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Documents created without a fiche store NULL. A raw d.fiche_id select
// would fail the int64 scan for every such row.
func TestDocumentColumnsCoalesceNullableFiche(t *testing.T) {
	require.Contains(t, documentColumns, "COALESCE(d.fiche_id, 0)")
	require.NotContains(t, documentColumns, " d.fiche_id,")
}
