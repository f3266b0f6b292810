package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"parking-engine/internal/parking"
)

type rateFile struct {
	Small  *float64 `yaml:"small"`
	Medium *float64 `yaml:"medium"`
	Large  *float64 `yaml:"large"`
}

func (r *rateFile) apply(dst *parking.SizeRates) {
	if r == nil {
		return
	}
	if r.Small != nil {
		dst.Small = *r.Small
	}
	if r.Medium != nil {
		dst.Medium = *r.Medium
	}
	if r.Large != nil {
		dst.Large = *r.Large
	}
}

// rulesFile mirrors the YAML rule table. Omitted keys keep their defaults.
type rulesFile struct {
	StandardLimitHours *float64  `yaml:"standard_limit_hours"`
	MemberLimitHours   *float64  `yaml:"member_limit_hours"`
	DailyRates         *rateFile `yaml:"daily_rates"`
	MembershipRates    *rateFile `yaml:"membership_rates"`
	MembershipDays     *float64  `yaml:"membership_days"`
	PenaltyPerHour     *float64  `yaml:"penalty_per_hour"`
	MaxPenalty         *float64  `yaml:"max_penalty"`
	MaxReEntries       *int      `yaml:"max_re_entries"`
	ReEntryWindowHours *float64  `yaml:"re_entry_window_hours"`
	ReEntryFee         *float64  `yaml:"re_entry_fee"`
	PeakHours          []string  `yaml:"peak_hours"`
}

// LoadRules reads a YAML rule table from path and overlays it on the
// built-in defaults.
func LoadRules(path string) (parking.Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return parking.Rules{}, errors.Wrapf(err, "read rules file %s", path)
	}
	return ParseRules(data)
}

func ParseRules(data []byte) (parking.Rules, error) {
	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return parking.Rules{}, errors.Wrap(err, "parse rules")
	}

	rules := parking.DefaultRules()
	setHours(&rules.StandardTimeLimit, file.StandardLimitHours)
	setHours(&rules.MemberTimeLimit, file.MemberLimitHours)
	setHours(&rules.ReEntryWindow, file.ReEntryWindowHours)
	if file.MembershipDays != nil {
		rules.MembershipPeriod = hours(*file.MembershipDays * 24)
	}

	file.DailyRates.apply(&rules.DailyRates)
	file.MembershipRates.apply(&rules.MembershipRates)

	if file.PenaltyPerHour != nil {
		rules.PenaltyPerHour = *file.PenaltyPerHour
	}
	if file.MaxPenalty != nil {
		rules.MaxPenalty = *file.MaxPenalty
	}
	if file.MaxReEntries != nil {
		rules.MaxReEntries = *file.MaxReEntries
	}
	if file.ReEntryFee != nil {
		rules.ReEntryFee = *file.ReEntryFee
	}

	// An explicit empty list disables peak restrictions.
	if file.PeakHours != nil {
		rules.PeakHours = make([]parking.PeakWindow, 0, len(file.PeakHours))
		for _, value := range file.PeakHours {
			w, err := parking.ParsePeakWindow(value)
			if err != nil {
				return parking.Rules{}, err
			}
			rules.PeakHours = append(rules.PeakHours, w)
		}
	}

	if err := rules.Validate(); err != nil {
		return parking.Rules{}, errors.Wrap(err, "invalid rules")
	}
	return rules, nil
}

func setHours(dst *time.Duration, value *float64) {
	if value != nil {
		*dst = hours(*value)
	}
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
