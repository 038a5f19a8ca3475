package analytics

import (
	"fmt"
	"sort"
	"time"

	"streamscribe/internal/types"
)

// Summary is the rollup over one set of accounting entries. A window with no
// records produces the zero value, which is a valid, renderable summary.
type Summary struct {
	TotalCost       float64 `json:"totalCost"`
	TotalRevenue    float64 `json:"totalRevenue"`
	TotalProfit     float64 `json:"totalProfit"`
	TotalDurationHr float64 `json:"totalDurationHours"`
	JobCount        int     `json:"jobCount"`
	UniqueUsers     int     `json:"uniqueUsers"`
}

// UserSpend is one user's share of upstream cost.
type UserSpend struct {
	UserID    string  `json:"userId"`
	TotalCost float64 `json:"totalCost"`
	JobCount  int     `json:"jobCount"`
	Hours     float64 `json:"hours"`
}

// Engagement is the read-side activity view of one account.
type Engagement struct {
	UserID     string    `json:"userId"`
	Email      string    `json:"email"`
	Notes      int       `json:"notes"`
	Exports    int       `json:"exports"`
	HoursUsed  float64   `json:"hoursUsed"`
	LastActive time.Time `json:"lastActive"`
}

// Grouping periods for GroupByPeriod.
const (
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
)

// Summarize rolls all records up into one summary.
func Summarize(records []types.CreditUsage) Summary {
	s := Summary{}
	users := map[string]struct{}{}
	for _, r := range records {
		s.TotalCost += r.UpstreamCost
		s.TotalRevenue += r.CostToUser
		s.TotalProfit += r.Profit
		s.TotalDurationHr += r.DurationHours
		s.JobCount++
		users[r.UserID.Hex()] = struct{}{}
	}
	s.UniqueUsers = len(users)
	return s
}

// GroupByTier produces one summary per subscription tier present.
func GroupByTier(records []types.CreditUsage) map[string]Summary {
	out := map[string]Summary{}
	byTier := map[string][]types.CreditUsage{}
	for _, r := range records {
		byTier[r.Tier] = append(byTier[r.Tier], r)
	}
	for tier, rs := range byTier {
		out[tier] = Summarize(rs)
	}
	return out
}

// GroupByPeriod buckets records by day, ISO week, or month of CreatedAt.
// Unknown periods fall back to day.
func GroupByPeriod(records []types.CreditUsage, period string) map[string]Summary {
	buckets := map[string][]types.CreditUsage{}
	for _, r := range records {
		buckets[periodKey(r.CreatedAt, period)] = append(buckets[periodKey(r.CreatedAt, period)], r)
	}
	out := map[string]Summary{}
	for k, rs := range buckets {
		out[k] = Summarize(rs)
	}
	return out
}

func periodKey(t time.Time, period string) string {
	t = t.UTC()
	switch period {
	case PeriodMonth:
		return t.Format("2006-01")
	case PeriodWeek:
		y, w := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, w)
	default:
		return t.Format("2006-01-02")
	}
}

// TopUsersByCost returns the n highest-spending users, cost descending with
// user id as a deterministic tie-break.
func TopUsersByCost(records []types.CreditUsage, n int) []UserSpend {
	byUser := map[string]*UserSpend{}
	for _, r := range records {
		id := r.UserID.Hex()
		u, ok := byUser[id]
		if !ok {
			u = &UserSpend{UserID: id}
			byUser[id] = u
		}
		u.TotalCost += r.UpstreamCost
		u.JobCount++
		u.Hours += r.DurationHours
	}

	out := make([]UserSpend, 0, len(byUser))
	for _, u := range byUser {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalCost != out[j].TotalCost {
			return out[i].TotalCost > out[j].TotalCost
		}
		return out[i].UserID < out[j].UserID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// EngagementReport maps user records into the engagement view, most recently
// active first.
func EngagementReport(users []types.User) []Engagement {
	out := make([]Engagement, 0, len(users))
	for _, u := range users {
		out = append(out, Engagement{
			UserID:     u.ID.Hex(),
			Email:      u.Email,
			Notes:      u.NotesCount,
			Exports:    u.Exports,
			HoursUsed:  u.HoursUsed,
			LastActive: u.LastActive,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActive.Equal(out[j].LastActive) {
			return out[i].LastActive.After(out[j].LastActive)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
