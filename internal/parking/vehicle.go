package parking

import (
	"fmt"
	"time"
)

const (
	warningsBeforeSuspension = 3
	suspensionReason         = "multiple violations"
)

// Session is one completed stay.
type Session struct {
	EnteredAt time.Time `json:"entered_at"`
	ExitedAt  time.Time `json:"exited_at"`
	SlotID    string    `json:"slot_id"`
}

func (s Session) Duration() time.Duration {
	return s.ExitedAt.Sub(s.EnteredAt)
}

// Profile is the policy state tracked per plate. It outlives the individual
// Vehicle records that reference it so that warnings, suspensions and
// re-entry limits carry over to later visits.
type Profile struct {
	Plate string

	ReEntryCount int
	LastReEntry  time.Time

	Warnings         int
	LastWarning      string
	Suspended        bool
	SuspensionReason string

	Sessions []Session
	FeesPaid float64
}

func NewProfile(plate string) *Profile {
	return &Profile{Plate: plate}
}

// CanReEnter resets the counter once the re-entry window has passed since the
// last re-entry, then reports whether another re-entry is allowed.
func (p *Profile) CanReEnter(now time.Time, rules *Rules) bool {
	if !p.LastReEntry.IsZero() && now.Sub(p.LastReEntry) > rules.ReEntryWindow {
		p.ReEntryCount = 0
	}
	return p.ReEntryCount < rules.MaxReEntries
}

func (p *Profile) RecordReEntry(now time.Time) {
	p.ReEntryCount++
	p.LastReEntry = now
}

func (p *Profile) ReEntryFee(rules *Rules) float64 {
	if p.ReEntryCount > 0 {
		return rules.ReEntryFee
	}
	return 0
}

func (p *Profile) IssueWarning(reason string) {
	p.Warnings++
	p.LastWarning = reason
	if p.Warnings >= warningsBeforeSuspension {
		p.Suspended = true
		p.SuspensionReason = suspensionReason
	}
}

func (p *Profile) AddSession(enteredAt, exitedAt time.Time, slotID string) {
	p.Sessions = append(p.Sessions, Session{EnteredAt: enteredAt, ExitedAt: exitedAt, SlotID: slotID})
}

func (p *Profile) TotalParked() time.Duration {
	var total time.Duration
	for _, s := range p.Sessions {
		total += s.Duration()
	}
	return total
}

func (p *Profile) lastExit() (time.Time, bool) {
	if len(p.Sessions) == 0 {
		return time.Time{}, false
	}
	return p.Sessions[len(p.Sessions)-1].ExitedAt, true
}

// Vehicle is one parking request. It is bound to at most one slot and is
// discarded once its exit has been processed.
type Vehicle struct {
	Ticket      string
	Size        Size
	Tier        Tier
	Plate       string
	AllocatedAt time.Time
	// PassExpiry is set only for Member vehicles that arrived holding an
	// active pass.
	PassExpiry *time.Time

	*Profile
}

func NewVehicle(size Size, tier Tier, plate string, profile *Profile) *Vehicle {
	if profile == nil {
		profile = NewProfile(plate)
	}
	return &Vehicle{
		Size:    size,
		Tier:    tier,
		Plate:   plate,
		Profile: profile,
	}
}

func (v *Vehicle) HasActivePass(now time.Time) bool {
	return v.Tier == TierMember && v.PassExpiry != nil && now.Before(*v.PassExpiry)
}

func (v *Vehicle) String() string {
	return fmt.Sprintf("%s vehicle (%s) - %s", v.Size, v.Plate, v.Tier)
}
