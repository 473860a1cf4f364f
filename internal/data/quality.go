package data

import (
	"fmt"
	"sort"
	"time"

	"github.com/atlas-desktop/crossover-trader/pkg/types"
)

// Issue types reported by Normalize
const (
	IssueDuplicate    = "duplicate"
	IssueOutOfOrder   = "out_of_order"
	IssueBadPrice     = "bad_price"
	IssueInconsistent = "ohlc_inconsistent"
)

// DataIssue represents a data quality problem
type DataIssue struct {
	Type    string    `json:"type"`
	Date    time.Time `json:"date"`
	Message string    `json:"message"`
}

// Normalize returns bars sorted strictly ascending by date with unique dates.
// Bars without a positive close are dropped. On duplicate dates the later
// bar in the input wins. Bars whose high/low do not bracket the close are
// kept but reported.
func Normalize(bars []types.PriceBar) ([]types.PriceBar, []DataIssue) {
	var issues []DataIssue

	clean := make([]types.PriceBar, 0, len(bars))
	for i, b := range bars {
		if !b.Close.IsPositive() {
			issues = append(issues, DataIssue{
				Type:    IssueBadPrice,
				Date:    b.Date,
				Message: fmt.Sprintf("close %s is not positive", b.Close),
			})
			continue
		}
		if i > 0 && b.Date.Before(bars[i-1].Date) {
			issues = append(issues, DataIssue{Type: IssueOutOfOrder, Date: b.Date, Message: "bar precedes its predecessor"})
		}
		if !b.High.IsZero() && !b.Low.IsZero() &&
			(b.High.LessThan(b.Close) || b.Low.GreaterThan(b.Close)) {
			issues = append(issues, DataIssue{Type: IssueInconsistent, Date: b.Date, Message: "high/low do not bracket close"})
		}
		clean = append(clean, b)
	}

	sort.SliceStable(clean, func(i, j int) bool {
		return clean[i].Date.Before(clean[j].Date)
	})

	out := clean[:0]
	for _, b := range clean {
		if n := len(out); n > 0 && out[n-1].Date.Equal(b.Date) {
			issues = append(issues, DataIssue{Type: IssueDuplicate, Date: b.Date, Message: "duplicate date"})
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}

	return out, issues
}
