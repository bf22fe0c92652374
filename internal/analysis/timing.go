package analysis

import (
	"math"
	"sort"
	"time"
	_ "time/tzdata"

	"github.com/ZanzyTHEbar/viral-o-meter/internal/types"
)

// Raw metric keys produced by TimingOptimizer.
const (
	MetricHourUTC           = "hour_utc"
	MetricWeekday           = "weekday"
	MetricIsPeakHour        = "is_peak_hour"
	MetricIsPeakDay         = "is_peak_day"
	MetricIsWeekend         = "is_weekend"
	MetricIsLateNight       = "is_late_night"
	MetricIsEarlyMorning    = "is_early_morning"
	MetricCurrentMultiplier = "current_multiplier"
	MetricIsOptimalTime     = "is_optimal_time"
	MetricHoursToOptimal    = "hours_to_next_optimal"

	LabelAudienceType  = "audience_type"
	LabelTargetZone    = "target_timezone"
	LabelTargetLocal   = "target_local_time"
	LabelNextOptimalAt = "next_optimal_at"
)

// DefaultReferenceZones are the timezones every optimal window is rendered in.
var DefaultReferenceZones = []string{
	"UTC", "America/New_York", "Europe/London", "Asia/Tokyo", "Australia/Sydney",
}

// TimingConfig tunes TimingOptimizer. Hour ranges are half-open [start, end) in UTC.
type TimingConfig struct {
	PeakHourStart, PeakHourEnd   int
	LateNightStart, LateNightEnd int
	EarlyMornStart, EarlyMornEnd int
	BonusHourStart, BonusHourEnd int
	PeakDays                     []time.Weekday
	BonusDays                    []time.Weekday
	PeakHourMultiplier           float64
	PeakDayMultiplier            float64
	WeekendMultiplier            float64
	LateNightMultiplier          float64
	EarlyMorningMultiplier       float64
	OptimalThreshold             float64
	DefaultHorizon               time.Duration
	DefaultWindowLimit           int
	ReferenceZones               []string
}

func DefaultTimingConfig() TimingConfig {
	return TimingConfig{
		PeakHourStart:          12,
		PeakHourEnd:            17,
		LateNightStart:         0,
		LateNightEnd:           6,
		EarlyMornStart:         6,
		EarlyMornEnd:           9,
		BonusHourStart:         14,
		BonusHourEnd:           16,
		PeakDays:               []time.Weekday{time.Tuesday, time.Wednesday, time.Thursday},
		BonusDays:              []time.Weekday{time.Tuesday, time.Wednesday},
		PeakHourMultiplier:     2.0,
		PeakDayMultiplier:      1.8,
		WeekendMultiplier:      0.6,
		LateNightMultiplier:    0.4,
		EarlyMorningMultiplier: 0.7,
		OptimalThreshold:       1.5,
		DefaultHorizon:         72 * time.Hour,
		DefaultWindowLimit:     5,
		ReferenceZones:         DefaultReferenceZones,
	}
}

// TimingInput is everything TimingOptimizer looks at.
type TimingInput struct {
	Now            time.Time
	TargetTime     time.Time
	TargetTimezone string
	AudienceType   string
}

func TimingInputFrom(p types.Post) TimingInput {
	return TimingInput{
		Now:            p.Now,
		TargetTime:     p.TargetTime,
		TargetTimezone: p.TargetTimezone,
		AudienceType:   p.AudienceType,
	}
}

// TimeSlot is a candidate posting hour with its local rendering in several zones.
type TimeSlot struct {
	Start      time.Time         `json:"start"`
	Multiplier float64           `json:"multiplier"`
	Score      float64           `json:"score"`
	LocalTimes map[string]string `json:"local_times"`
}

// TimingOptimizer scores when a post is (or will be) published.
type TimingOptimizer struct {
	cfg   TimingConfig
	zones map[string]*time.Location
}

func NewTimingOptimizer(cfg TimingConfig) *TimingOptimizer {
	zones := make(map[string]*time.Location, len(cfg.ReferenceZones))
	for _, name := range cfg.ReferenceZones {
		if loc, err := time.LoadLocation(name); err == nil {
			zones[name] = loc
		}
	}
	return &TimingOptimizer{cfg: cfg, zones: zones}
}

func (t *TimingOptimizer) Name() string { return ComponentTiming }

func (t *TimingOptimizer) Score(in TimingInput) ScoreComponent {
	at := in.TargetTime
	if at.IsZero() {
		at = in.Now
	}
	u := at.UTC()
	hour, day := u.Hour(), u.Weekday()
	m := t.Multiplier(at)

	labels := map[string]string{LabelAudienceType: in.AudienceType}
	if in.TargetTimezone != "" {
		labels[LabelTargetZone] = in.TargetTimezone
		if loc, err := time.LoadLocation(in.TargetTimezone); err == nil {
			labels[LabelTargetLocal] = at.In(loc).Format(time.RFC3339)
		}
	}

	hoursToOptimal := -1.0
	if next, ok := t.nextOptimal(at); ok {
		hoursToOptimal = next.Sub(u.Truncate(time.Hour)).Hours()
		labels[LabelNextOptimalAt] = next.Format(time.RFC3339)
	}

	return ScoreComponent{
		Name: ComponentTiming,
		RawMetrics: map[string]float64{
			MetricHourUTC:           float64(hour),
			MetricWeekday:           float64(day),
			MetricIsPeakHour:        boolMetric(t.isPeakHour(hour)),
			MetricIsPeakDay:         boolMetric(containsDay(t.cfg.PeakDays, day)),
			MetricIsWeekend:         boolMetric(isWeekend(day)),
			MetricIsLateNight:       boolMetric(inRange(hour, t.cfg.LateNightStart, t.cfg.LateNightEnd)),
			MetricIsEarlyMorning:    boolMetric(inRange(hour, t.cfg.EarlyMornStart, t.cfg.EarlyMornEnd)),
			MetricCurrentMultiplier: m,
			MetricIsOptimalTime:     boolMetric(m >= t.cfg.OptimalThreshold),
			MetricHoursToOptimal:    hoursToOptimal,
		},
		Labels:          labels,
		NormalizedScore: clamp01(m / 2),
	}
}

// Multiplier combines every hour and day factor that applies to at (in UTC).
func (t *TimingOptimizer) Multiplier(at time.Time) float64 {
	u := at.UTC()
	hour, day := u.Hour(), u.Weekday()
	m := 1.0
	if t.isPeakHour(hour) {
		m *= t.cfg.PeakHourMultiplier
	}
	if containsDay(t.cfg.PeakDays, day) {
		m *= t.cfg.PeakDayMultiplier
	}
	if isWeekend(day) {
		m *= t.cfg.WeekendMultiplier
	}
	if inRange(hour, t.cfg.LateNightStart, t.cfg.LateNightEnd) {
		m *= t.cfg.LateNightMultiplier
	}
	if inRange(hour, t.cfg.EarlyMornStart, t.cfg.EarlyMornEnd) {
		m *= t.cfg.EarlyMorningMultiplier
	}
	return m
}

// OptimalWindows scans hourly slots in [from, from+horizon) and returns up to
// limit slots whose multiplier clears the optimal threshold, best first.
// A zero horizon or limit falls back to the configured defaults.
func (t *TimingOptimizer) OptimalWindows(from time.Time, horizon time.Duration, limit int, targetZone string) []TimeSlot {
	if horizon <= 0 {
		horizon = t.cfg.DefaultHorizon
	}
	if limit <= 0 {
		limit = t.cfg.DefaultWindowLimit
	}

	zones := make(map[string]*time.Location, len(t.zones)+1)
	for k, v := range t.zones {
		zones[k] = v
	}
	if targetZone != "" {
		if loc, err := time.LoadLocation(targetZone); err == nil {
			zones[targetZone] = loc
		}
	}

	var slots []TimeSlot
	start := firstSlot(from)
	end := from.UTC().Add(horizon)
	for at := start; at.Before(end); at = at.Add(time.Hour) {
		m := t.Multiplier(at)
		if m < t.cfg.OptimalThreshold {
			continue
		}
		local := make(map[string]string, len(zones))
		for name, loc := range zones {
			local[name] = at.In(loc).Format(time.RFC3339)
		}
		slots = append(slots, TimeSlot{Start: at, Multiplier: m, Score: t.rank(at), LocalTimes: local})
	}

	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Score != slots[j].Score {
			return slots[i].Score > slots[j].Score
		}
		return slots[i].Start.Before(slots[j].Start)
	})
	if len(slots) > limit {
		slots = slots[:limit]
	}
	return slots
}

// rank is the additive ordering score for a candidate slot.
func (t *TimingOptimizer) rank(at time.Time) float64 {
	hour, day := at.Hour(), at.Weekday()
	score := 0.0
	if t.isPeakHour(hour) {
		score += 3
	}
	if containsDay(t.cfg.PeakDays, day) {
		score += 2
	}
	if inRange(hour, t.cfg.BonusHourStart, t.cfg.BonusHourEnd) {
		score++
	}
	if containsDay(t.cfg.BonusDays, day) {
		score++
	}
	return score
}

func (t *TimingOptimizer) nextOptimal(from time.Time) (time.Time, bool) {
	start := from.UTC().Truncate(time.Hour)
	steps := int(math.Ceil(t.cfg.DefaultHorizon.Hours()))
	for i := 0; i <= steps; i++ {
		at := start.Add(time.Duration(i) * time.Hour)
		if t.Multiplier(at) >= t.cfg.OptimalThreshold {
			return at, true
		}
	}
	return time.Time{}, false
}

func (t *TimingOptimizer) isPeakHour(hour int) bool {
	return inRange(hour, t.cfg.PeakHourStart, t.cfg.PeakHourEnd)
}

// firstSlot is the first whole UTC hour at or after from.
func firstSlot(from time.Time) time.Time {
	u := from.UTC()
	s := u.Truncate(time.Hour)
	if s.Before(u) {
		s = s.Add(time.Hour)
	}
	return s
}

func inRange(hour, start, end int) bool { return hour >= start && hour < end }

func isWeekend(d time.Weekday) bool { return d == time.Saturday || d == time.Sunday }

func containsDay(days []time.Weekday, d time.Weekday) bool {
	for _, x := range days {
		if x == d {
			return true
		}
	}
	return false
}
