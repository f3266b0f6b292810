package parking

import (
	"fmt"
	"math"
	"time"

	"github.com/cockroachdb/errors"
)

type Slot struct {
	ID      string
	Level   int
	Section Section
	Size    Size

	IsOccupied bool
	Vehicle    *Vehicle
	// AllocatedAt survives Leave so that a receipt can still be produced.
	AllocatedAt time.Time
}

func NewSlot(level int, section Section, size Size, number int) *Slot {
	return &Slot{
		ID:      fmt.Sprintf("%c%d%c%02d", section.letter(), level, size.letter(), number),
		Level:   level,
		Section: section,
		Size:    size,
	}
}

func (s *Slot) Park(vehicle *Vehicle, now time.Time) error {
	if s.IsOccupied {
		return errors.AssertionFailedf("slot %s is already occupied by ticket %s", s.ID, s.Vehicle.Ticket)
	}
	if vehicle.Size != s.Size {
		return errors.AssertionFailedf("slot %s accepts %s vehicles, got %s", s.ID, s.Size, vehicle.Size)
	}

	vehicle.AllocatedAt = now
	s.Vehicle = vehicle
	s.AllocatedAt = now
	s.IsOccupied = true
	return nil
}

func (s *Slot) Leave() *Vehicle {
	if !s.IsOccupied {
		return nil
	}

	vehicle := s.Vehicle
	s.Vehicle = nil
	s.IsOccupied = false
	return vehicle
}

// IsExpired reports whether the bound vehicle has stayed past its tier limit.
// Members holding an active pass never expire.
func (s *Slot) IsExpired(rules *Rules, now time.Time) bool {
	if !s.IsOccupied || s.AllocatedAt.IsZero() {
		return false
	}
	if s.Vehicle.HasActivePass(now) {
		return false
	}
	return now.Sub(s.AllocatedAt) > rules.TimeLimit(s.Vehicle.Tier)
}

// CalculateFee returns the base fee for the current stay, including any
// overstay surcharge, rounded to cents.
func (s *Slot) CalculateFee(rules *Rules, now time.Time) float64 {
	if !s.IsOccupied || s.AllocatedAt.IsZero() {
		return 0
	}

	v := s.Vehicle
	elapsed := now.Sub(s.AllocatedAt)
	if elapsed < 0 {
		elapsed = 0
	}

	var fee float64
	switch {
	case v.HasActivePass(now):
		fee = 0
	case v.Tier == TierMember:
		fee = rules.MembershipRates.For(v.Size)
	default:
		fee = rules.DailyRates.For(v.Size) * float64(billableDays(elapsed))
	}
	fee += rules.OverstayPenalty(v.Tier, elapsed)

	return roundCents(math.Max(fee, 0))
}

// billableDays rounds up to whole days, with a minimum of one.
func billableDays(elapsed time.Duration) int {
	days := int(math.Ceil(elapsed.Hours() / 24))
	if days < 1 {
		return 1
	}
	return days
}

// SlotInfo is a point-in-time copy of a slot handed to callers outside the lock.
type SlotInfo struct {
	ID          string     `json:"slot_id"`
	Level       int        `json:"level"`
	Section     Section    `json:"section"`
	Size        Size       `json:"size"`
	Occupied    bool       `json:"occupied"`
	Ticket      string     `json:"ticket,omitempty"`
	Plate       string     `json:"license_plate,omitempty"`
	Tier        *Tier      `json:"customer_type,omitempty"`
	AllocatedAt *time.Time `json:"allocation_time,omitempty"`
	Expired     bool       `json:"expired"`
}

func (s *Slot) Info(rules *Rules, now time.Time) SlotInfo {
	info := SlotInfo{
		ID:       s.ID,
		Level:    s.Level,
		Section:  s.Section,
		Size:     s.Size,
		Occupied: s.IsOccupied,
		Expired:  s.IsExpired(rules, now),
	}
	if !s.AllocatedAt.IsZero() {
		at := s.AllocatedAt
		info.AllocatedAt = &at
	}
	if s.IsOccupied {
		tier := s.Vehicle.Tier
		info.Ticket = s.Vehicle.Ticket
		info.Plate = s.Vehicle.Plate
		info.Tier = &tier
	}
	return info
}

func (s *Slot) String() string {
	status := "Empty"
	if s.IsOccupied {
		status = "Occupied - " + s.Vehicle.String()
	}
	return fmt.Sprintf("Slot %s (Level %d, %s, %s): %s", s.ID, s.Level, s.Section, s.Size, status)
}
