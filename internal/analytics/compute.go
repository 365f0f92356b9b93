package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/BarkinBalci/behavior-telemetry/internal/domain"
)

const day = 24 * time.Hour

// CohortOffsets are the day offsets of every cohort retention curve
var CohortOffsets = []int{0, 1, 7, 30}

// DefaultTopN bounds feature and screen rankings
const DefaultTopN = 10

// RetentionData is the share of users seen again N days after first seen
type RetentionData struct {
	Day1  float64 `json:"day1_retention"`
	Day7  float64 `json:"day7_retention"`
	Day30 float64 `json:"day30_retention"`
	Users int     `json:"users"`
}

// CohortRetention is one point on a cohort's retention curve
type CohortRetention struct {
	Day  int     `json:"day"`
	Rate float64 `json:"rate"`
}

// Cohort groups users by the month of their first app_launch
type Cohort struct {
	Key       string            `json:"cohort"`
	Size      int               `json:"size"`
	Retention []CohortRetention `json:"retention"`
}

type CohortAnalysis struct {
	Cohorts []Cohort `json:"cohorts"`
}

type FunnelStep struct {
	Name           string  `json:"name"`
	Count          int     `json:"count"`
	ConversionRate float64 `json:"conversion_rate"`
}

type FunnelAnalysis struct {
	Steps []FunnelStep `json:"steps"`
}

// Counts returns the completed-user count of every step
func (f FunnelAnalysis) Counts() []int {
	counts := make([]int, len(f.Steps))
	for i, s := range f.Steps {
		counts[i] = s.Count
	}
	return counts
}

// Rates returns the step-over-step conversion rate of every step
func (f FunnelAnalysis) Rates() []float64 {
	rates := make([]float64, len(f.Steps))
	for i, s := range f.Steps {
		rates[i] = s.ConversionRate
	}
	return rates
}

// RankedItem is a named occurrence count
type RankedItem struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// UserBehaviorAnalytics summarizes the stored event log
type UserBehaviorAnalytics struct {
	TotalEvents                   int            `json:"total_events"`
	UniqueUsers                   int            `json:"unique_users"`
	TotalSessions                 int            `json:"total_sessions"`
	AverageSessionDurationSeconds float64        `json:"average_session_duration_seconds"`
	Conversions                   int            `json:"conversions"`
	EngagementScore               float64        `json:"engagement_score"`
	Retention                     RetentionData  `json:"retention"`
	TopFeatures                   []RankedItem   `json:"top_features"`
	TopScreens                    []RankedItem   `json:"top_screens"`
	EventCounts                   map[string]int `json:"event_counts"`
}

type span struct {
	first time.Time
	last  time.Time
}

// userSpans returns first/last seen per distinct non-empty user id
func userSpans(events []domain.Event) map[string]*span {
	spans := make(map[string]*span)
	for _, e := range events {
		if e.UserID == "" {
			continue
		}
		s, ok := spans[e.UserID]
		if !ok {
			spans[e.UserID] = &span{first: e.Timestamp, last: e.Timestamp}
			continue
		}
		if e.Timestamp.Before(s.first) {
			s.first = e.Timestamp
		}
		if e.Timestamp.After(s.last) {
			s.last = e.Timestamp
		}
	}
	return spans
}

// retained reports whether a user was seen strictly later than from + days
func retained(from, last time.Time, days int) bool {
	return last.After(from.Add(time.Duration(days) * day))
}

// Retention computes day 1/7/30 retention over distinct users
func Retention(events []domain.Event) RetentionData {
	spans := userSpans(events)
	result := RetentionData{Users: len(spans)}
	if len(spans) == 0 {
		return result
	}

	var d1, d7, d30 int
	for _, s := range spans {
		if retained(s.first, s.last, 1) {
			d1++
		}
		if retained(s.first, s.last, 7) {
			d7++
		}
		if retained(s.first, s.last, 30) {
			d30++
		}
	}

	total := float64(len(spans))
	result.Day1 = float64(d1) / total
	result.Day7 = float64(d7) / total
	result.Day30 = float64(d30) / total
	return result
}

// Cohorts groups users by the UTC month of their first app_launch and
// computes each cohort's retention curve at CohortOffsets
func Cohorts(events []domain.Event) CohortAnalysis {
	spans := userSpans(events)

	firstLaunch := make(map[string]time.Time)
	for _, e := range events {
		if e.Name != domain.EventAppLaunch || e.UserID == "" {
			continue
		}
		if t, ok := firstLaunch[e.UserID]; !ok || e.Timestamp.Before(t) {
			firstLaunch[e.UserID] = e.Timestamp
		}
	}

	members := make(map[string][]string)
	for user, launched := range firstLaunch {
		key := launched.UTC().Format("2006-01")
		members[key] = append(members[key], user)
	}

	keys := make([]string, 0, len(members))
	for key := range members {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	analysis := CohortAnalysis{Cohorts: make([]Cohort, 0, len(keys))}
	for _, key := range keys {
		users := members[key]
		cohort := Cohort{Key: key, Size: len(users)}
		for _, offset := range CohortOffsets {
			rate := 1.0
			if offset > 0 {
				count := 0
				for _, user := range users {
					if retained(firstLaunch[user], spans[user].last, offset) {
						count++
					}
				}
				rate = float64(count) / float64(len(users))
			}
			cohort.Retention = append(cohort.Retention, CohortRetention{Day: offset, Rate: rate})
		}
		analysis.Cohorts = append(analysis.Cohorts, cohort)
	}
	return analysis
}

// Funnel computes a strict, order-enforcing funnel: a user completes step i
// at the first occurrence of its event at or after completing step i-1
func Funnel(events []domain.Event, steps []string) FunnelAnalysis {
	analysis := FunnelAnalysis{Steps: make([]FunnelStep, len(steps))}
	if len(steps) == 0 {
		return analysis
	}

	byUser := make(map[string][]domain.Event)
	for _, e := range events {
		if e.UserID == "" {
			continue
		}
		byUser[e.UserID] = append(byUser[e.UserID], e)
	}

	counts := make([]int, len(steps))
	for _, userEvents := range byUser {
		sort.SliceStable(userEvents, func(i, j int) bool {
			return userEvents[i].Timestamp.Before(userEvents[j].Timestamp)
		})

		next := 0
		for _, e := range userEvents {
			if next == len(steps) {
				break
			}
			if e.Name == steps[next] {
				counts[next]++
				next++
			}
		}
	}

	for i, name := range steps {
		rate := 1.0
		if i > 0 {
			rate = 0
			if counts[i-1] > 0 {
				rate = float64(counts[i]) / float64(counts[i-1])
			}
		}
		analysis.Steps[i] = FunnelStep{Name: name, Count: counts[i], ConversionRate: rate}
	}
	return analysis
}

// EngagementScore is the average number of events per distinct session,
// normalized by 10 and capped at 1
func EngagementScore(events []domain.Event) float64 {
	sessions := make(map[string]int)
	for _, e := range events {
		if e.SessionID == "" {
			continue
		}
		sessions[e.SessionID]++
	}
	if len(sessions) == 0 {
		return 0
	}

	total := 0
	for _, n := range sessions {
		total += n
	}
	avg := float64(total) / float64(len(sessions))
	return math.Min(avg/10, 1.0)
}

// TopFeatures ranks feature_usage events by feature_name
func TopFeatures(events []domain.Event, n int) []RankedItem {
	return rank(events, domain.EventFeatureUsage, domain.PropFeatureName, n)
}

// TopScreens ranks screen_view events by screen_name
func TopScreens(events []domain.Event, n int) []RankedItem {
	return rank(events, domain.EventScreenView, domain.PropScreenName, n)
}

func rank(events []domain.Event, name, prop string, n int) []RankedItem {
	counts := make(map[string]int)
	for _, e := range events {
		if e.Name != name {
			continue
		}
		if key := e.Property(prop); key != "" {
			counts[key]++
		}
	}

	items := make([]RankedItem, 0, len(counts))
	for key, count := range counts {
		items = append(items, RankedItem{Name: key, Count: count})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].Name < items[j].Name
	})

	if n > 0 && len(items) > n {
		items = items[:n]
	}
	return items
}

// UserBehavior builds the summary view over the whole log
func UserBehavior(events []domain.Event, topN int) UserBehaviorAnalytics {
	result := UserBehaviorAnalytics{
		TotalEvents:     len(events),
		EngagementScore: EngagementScore(events),
		Retention:       Retention(events),
		TopFeatures:     TopFeatures(events, topN),
		TopScreens:      TopScreens(events, topN),
		EventCounts:     make(map[string]int),
	}
	result.UniqueUsers = result.Retention.Users

	sessions := make(map[string]struct{})
	var durationTotal float64
	var durationCount int
	for _, e := range events {
		result.EventCounts[e.Name]++
		if e.SessionID != "" {
			sessions[e.SessionID] = struct{}{}
		}
		switch e.Name {
		case domain.EventConversion:
			result.Conversions++
		case domain.EventSessionEnd:
			if seconds, ok := number(e.Properties[domain.PropSessionDuration]); ok {
				durationTotal += seconds
				durationCount++
			}
		}
	}

	result.TotalSessions = len(sessions)
	if durationCount > 0 {
		result.AverageSessionDurationSeconds = durationTotal / float64(durationCount)
	}
	return result
}

// number accepts both in-memory numeric properties and float64 values
// decoded from the persisted JSON log
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
