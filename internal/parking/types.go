package parking

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Size is the vehicle size class a slot accepts.
type Size int

const (
	SizeSmall Size = iota
	SizeMedium
	SizeLarge
)

var Sizes = []Size{SizeSmall, SizeMedium, SizeLarge}

func (s Size) String() string {
	switch s {
	case SizeSmall:
		return "Small"
	case SizeMedium:
		return "Medium"
	case SizeLarge:
		return "Large"
	default:
		return "Unknown"
	}
}

func (s Size) letter() byte {
	return s.String()[0]
}

func ParseSize(value string) (Size, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "small", "s":
		return SizeSmall, nil
	case "medium", "m":
		return SizeMedium, nil
	case "large", "l":
		return SizeLarge, nil
	}
	return 0, errors.Newf("unknown vehicle size %q", value)
}

func (s Size) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Size) UnmarshalText(text []byte) error {
	parsed, err := ParseSize(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Tier is the requester classification controlling pricing and priority.
type Tier int

const (
	TierStandard Tier = iota
	TierMember
)

func (t Tier) String() string {
	switch t {
	case TierStandard:
		return "Standard"
	case TierMember:
		return "Member"
	default:
		return "Unknown"
	}
}

// ParseTier accepts the legacy "regular"/"vip" names as aliases.
func ParseTier(value string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "standard", "regular":
		return TierStandard, nil
	case "member", "vip":
		return TierMember, nil
	}
	return 0, errors.Newf("unknown customer tier %q", value)
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Section partitions slots by privilege or utility.
type Section int

const (
	SectionStandard Section = iota
	SectionMember
	SectionEV
)

var Sections = []Section{SectionStandard, SectionMember, SectionEV}

func (s Section) String() string {
	switch s {
	case SectionStandard:
		return "Standard"
	case SectionMember:
		return "Member"
	case SectionEV:
		return "EV"
	default:
		return "Unknown"
	}
}

func (s Section) letter() byte {
	return s.String()[0]
}

func ParseSection(value string) (Section, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "standard":
		return SectionStandard, nil
	case "member":
		return SectionMember, nil
	case "ev":
		return SectionEV, nil
	}
	return 0, errors.Newf("unknown section %q", value)
}

func (s Section) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Section) UnmarshalText(text []byte) error {
	parsed, err := ParseSection(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// sectionOrder returns the search order for a request. The primary section is
// followed by the two others so that a request is never rejected while any
// slot of its size is free.
func sectionOrder(tier Tier, isEV bool) []Section {
	switch {
	case isEV && tier == TierMember:
		return []Section{SectionEV, SectionMember, SectionStandard}
	case isEV:
		return []Section{SectionEV, SectionStandard, SectionMember}
	case tier == TierMember:
		return []Section{SectionMember, SectionStandard, SectionEV}
	default:
		return []Section{SectionStandard, SectionEV, SectionMember}
	}
}
