package parking

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	membershipDays     = 30
	membershipDiscount = 0.7
	minutesPerDay      = 24 * 60
)

// SizeRates holds one amount per vehicle size.
type SizeRates struct {
	Small  float64
	Medium float64
	Large  float64
}

func (r SizeRates) For(size Size) float64 {
	switch size {
	case SizeMedium:
		return r.Medium
	case SizeLarge:
		return r.Large
	default:
		return r.Small
	}
}

func (r SizeRates) byName() map[string]float64 {
	return map[string]float64{
		SizeSmall.String():  r.Small,
		SizeMedium.String(): r.Medium,
		SizeLarge.String():  r.Large,
	}
}

// PeakWindow is a daily interval in minutes since midnight, inclusive on both
// ends.
type PeakWindow struct {
	Start int
	End   int
}

// ParsePeakWindow parses "HH:MM-HH:MM".
func ParsePeakWindow(value string) (PeakWindow, error) {
	start, end, ok := strings.Cut(strings.TrimSpace(value), "-")
	if !ok {
		return PeakWindow{}, errors.Newf("peak window %q: expected HH:MM-HH:MM", value)
	}
	s, err := parseClock(start)
	if err != nil {
		return PeakWindow{}, errors.Wrapf(err, "peak window %q", value)
	}
	e, err := parseClock(end)
	if err != nil {
		return PeakWindow{}, errors.Wrapf(err, "peak window %q", value)
	}
	w := PeakWindow{Start: s, End: e}
	if err := w.validate(); err != nil {
		return PeakWindow{}, err
	}
	return w, nil
}

func parseClock(value string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (w PeakWindow) validate() error {
	if w.Start < 0 || w.End >= minutesPerDay || w.Start > w.End {
		return errors.Newf("peak window %s is not a same-day interval", w)
	}
	return nil
}

func (w PeakWindow) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	return w.Start <= m && m <= w.End
}

func (w PeakWindow) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Start/60, w.Start%60, w.End/60, w.End%60)
}

// Rules is the static rule table. The ParkingLot keeps its own copy, so a
// Rules value handed to NewParkingLot is never observed changing.
type Rules struct {
	StandardTimeLimit time.Duration
	MemberTimeLimit   time.Duration

	DailyRates      SizeRates
	MembershipRates SizeRates
	// MembershipPeriod is how long a pass stays active after it is bought.
	MembershipPeriod time.Duration

	PenaltyPerHour float64
	MaxPenalty     float64

	MaxReEntries  int
	ReEntryWindow time.Duration
	ReEntryFee    float64

	// PeakHours restrict Large vehicles from entering.
	PeakHours []PeakWindow
}

func DefaultRules() Rules {
	daily := SizeRates{Small: 50, Medium: 100, Large: 150}
	return Rules{
		StandardTimeLimit: 24 * time.Hour,
		MemberTimeLimit:   membershipDays * 24 * time.Hour,
		DailyRates:        daily,
		MembershipRates: SizeRates{
			Small:  roundCents(daily.Small * membershipDays * membershipDiscount),
			Medium: roundCents(daily.Medium * membershipDays * membershipDiscount),
			Large:  roundCents(daily.Large * membershipDays * membershipDiscount),
		},
		MembershipPeriod: membershipDays * 24 * time.Hour,
		PenaltyPerHour:   25,
		MaxPenalty:       500,
		MaxReEntries:     3,
		ReEntryWindow:    24 * time.Hour,
		ReEntryFee:       20,
		PeakHours: []PeakWindow{
			{Start: 9 * 60, End: 11 * 60},
			{Start: 17 * 60, End: 19 * 60},
		},
	}
}

func (r Rules) Validate() error {
	if r.StandardTimeLimit <= 0 || r.MemberTimeLimit <= 0 {
		return errors.New("time limits must be positive")
	}
	if r.MembershipPeriod <= 0 {
		return errors.New("membership period must be positive")
	}
	for _, size := range Sizes {
		daily, member := r.DailyRates.For(size), r.MembershipRates.For(size)
		if daily < 0 || member < 0 {
			return errors.Newf("%s rates must not be negative", size)
		}
		if member > membershipDays*daily {
			return errors.Newf("%s membership rate %.2f exceeds %d daily rates", size, member, membershipDays)
		}
	}
	if r.PenaltyPerHour < 0 || r.MaxPenalty < 0 {
		return errors.New("overstay penalty must not be negative")
	}
	if r.MaxReEntries < 0 || r.ReEntryWindow < 0 || r.ReEntryFee < 0 {
		return errors.New("re-entry rules must not be negative")
	}
	for _, w := range r.PeakHours {
		if err := w.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (r *Rules) TimeLimit(tier Tier) time.Duration {
	if tier == TierMember {
		return r.MemberTimeLimit
	}
	return r.StandardTimeLimit
}

// OverstayPenalty is the capped surcharge for time beyond the tier limit.
func (r *Rules) OverstayPenalty(tier Tier, elapsed time.Duration) float64 {
	limit := r.TimeLimit(tier)
	if elapsed <= limit {
		return 0
	}
	over := (elapsed - limit).Hours()
	return math.Min(over*r.PenaltyPerHour, r.MaxPenalty)
}

func (r *Rules) InPeakHours(t time.Time) bool {
	for _, w := range r.PeakHours {
		if w.Contains(t) {
			return true
		}
	}
	return false
}

func (r Rules) clone() Rules {
	r.PeakHours = append([]PeakWindow(nil), r.PeakHours...)
	return r
}

type RuleSummary struct {
	StandardTimeLimitHours float64            `json:"standard_time_limit_hours"`
	MemberTimeLimitHours   float64            `json:"member_time_limit_hours"`
	DailyRates             map[string]float64 `json:"daily_rates"`
	MembershipRates        map[string]float64 `json:"membership_rates"`
	MembershipDays         float64            `json:"membership_days"`
	PenaltyPerHour         float64            `json:"penalty_per_hour"`
	MaxPenalty             float64            `json:"max_penalty"`
	MaxReEntries           int                `json:"max_re_entries"`
	ReEntryWindowHours     float64            `json:"re_entry_window_hours"`
	ReEntryFee             float64            `json:"re_entry_fee"`
	PeakHours              []string           `json:"peak_hours"`
}

func (r *Rules) Summary() RuleSummary {
	peaks := make([]string, 0, len(r.PeakHours))
	for _, w := range r.PeakHours {
		peaks = append(peaks, w.String())
	}
	return RuleSummary{
		StandardTimeLimitHours: r.StandardTimeLimit.Hours(),
		MemberTimeLimitHours:   r.MemberTimeLimit.Hours(),
		DailyRates:             r.DailyRates.byName(),
		MembershipRates:        r.MembershipRates.byName(),
		MembershipDays:         r.MembershipPeriod.Hours() / 24,
		PenaltyPerHour:         r.PenaltyPerHour,
		MaxPenalty:             r.MaxPenalty,
		MaxReEntries:           r.MaxReEntries,
		ReEntryWindowHours:     r.ReEntryWindow.Hours(),
		ReEntryFee:             r.ReEntryFee,
		PeakHours:              peaks,
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// Layout describes how many slots of each size every section holds on each
// level.
type Layout struct {
	Levels   int
	Standard int
	Member   int
	EV       int
}

func DefaultLayout() Layout {
	return Layout{Levels: 2, Standard: 15, Member: 10, EV: 6}
}

func (l Layout) perSize(section Section) int {
	switch section {
	case SectionMember:
		return l.Member
	case SectionEV:
		return l.EV
	default:
		return l.Standard
	}
}

func (l Layout) Capacity() int {
	return l.Levels * len(Sizes) * (l.Standard + l.Member + l.EV)
}

func (l Layout) Validate() error {
	if l.Levels < 1 || l.Levels > 9 {
		return errors.Newf("levels must be between 1 and 9, got %d", l.Levels)
	}
	for _, section := range Sections {
		if n := l.perSize(section); n < 0 || n > 99 {
			return errors.Newf("%s slots per size must be between 0 and 99, got %d", section, n)
		}
	}
	if l.Capacity() == 0 {
		return errors.New("layout has no slots")
	}
	return nil
}
