package payments

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"
)

// DefaultDuplicateGranularity buckets paid-at timestamps by calendar day,
// which matches how double entries actually happen at the counter.
const DefaultDuplicateGranularity = 24 * time.Hour

// DuplicateQuery scopes a duplicate scan. Zero From/To means unbounded on
// that side; zero CenterID means all centers.
type DuplicateQuery struct {
	From        time.Time
	To          time.Time
	CenterID    int64
	Granularity time.Duration
}

type duplicateKey struct {
	documentID int64
	cents      int64
	method     string
	bucket     time.Time
}

// FindDuplicates reports payments that share document, amount, method and a
// paid-at timestamp truncated to the configured granularity. The report is
// advisory: a legitimate repeat (two identical co-pays the same day) looks
// exactly like a double entry, so resolution stays with a human.
func (s *Service) FindDuplicates(ctx context.Context, q DuplicateQuery) ([]DuplicateGroup, error) {
	if q.Granularity <= 0 {
		q.Granularity = s.cfg.DuplicateGranularity
	}
	if q.Granularity <= 0 {
		q.Granularity = DefaultDuplicateGranularity
	}
	rows, err := s.repo.ListInWindow(ctx, q.From, q.To, q.CenterID)
	if err != nil {
		return nil, err
	}

	groups := make(map[duplicateKey][]Payment)
	for _, p := range rows {
		key := duplicateKey{
			documentID: p.DocumentID,
			cents:      int64(math.Round(p.Amount * 100)),
			method:     strings.ToUpper(strings.TrimSpace(p.Method)),
			bucket:     p.PaidAt.UTC().Truncate(q.Granularity),
		}
		groups[key] = append(groups[key], p)
	}

	var out []DuplicateGroup
	for key, members := range groups {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
		out = append(out, DuplicateGroup{
			DocumentID: key.documentID,
			Amount:     float64(key.cents) / 100,
			Method:     key.method,
			Bucket:     key.bucket,
			Payments:   members,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].Bucket.Before(out[j].Bucket)
	})
	return out, nil
}
