package parking

import (
	"time"

	"github.com/cockroachdb/errors"

	"parking-engine/internal/logging"
)

const overstayWarning = "overstay violation"

// ExitResult is the billing outcome of a processed exit.
type ExitResult struct {
	Ticket        string     `json:"ticket"`
	Plate         string     `json:"license_plate"`
	Size          Size       `json:"vehicle_type"`
	Tier          Tier       `json:"customer_type"`
	SlotID        string     `json:"slot_id"`
	Level         int        `json:"level"`
	Section       Section    `json:"section"`
	EnteredAt     time.Time  `json:"allocation_time"`
	ExitedAt      time.Time  `json:"exit_time"`
	DurationHours float64    `json:"hours"`
	PassExpiry    *time.Time `json:"pass_expiry,omitempty"`
	BaseFee       float64    `json:"base_fee"`
	ReEntryFee    float64    `json:"re_entry_fee"`
	TotalFee      float64    `json:"total_fee"`
	Overstay      bool       `json:"overstay"`
	Warnings      int        `json:"warnings"`
	Suspended     bool       `json:"suspended"`
}

// ProcessExit bills the stay bound to ticket, records it on the plate's
// profile, issues an overstay warning when the slot has expired and frees the
// slot.
func (pl *ParkingLot) ProcessExit(ticket string) (ExitResult, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	slot, err := pl.findByTicketLocked(ticket)
	if err != nil {
		return ExitResult{}, err
	}

	now := pl.clock.Now()
	vehicle := slot.Vehicle
	enteredAt := slot.AllocatedAt

	baseFee := slot.CalculateFee(&pl.rules, now)
	reEntryFee := vehicle.ReEntryFee(&pl.rules)
	totalFee := roundCents(baseFee + reEntryFee)

	overstay := slot.IsExpired(&pl.rules, now)
	if overstay {
		vehicle.IssueWarning(overstayWarning)
	}

	vehicle.AddSession(enteredAt, now, slot.ID)
	vehicle.FeesPaid = roundCents(vehicle.FeesPaid + totalFee)

	released, err := pl.releaseLocked(ticket)
	if err != nil || released != slot {
		err = errors.AssertionFailedf("slot %s could not be released for ticket %s", slot.ID, ticket)
		logging.Logger().Error().Err(err).Msg("invariant violation during exit")
		return ExitResult{}, err
	}

	return ExitResult{
		Ticket:        ticket,
		Plate:         vehicle.Plate,
		Size:          vehicle.Size,
		Tier:          vehicle.Tier,
		SlotID:        slot.ID,
		Level:         slot.Level,
		Section:       slot.Section,
		EnteredAt:     enteredAt,
		ExitedAt:      now,
		DurationHours: roundCents(now.Sub(enteredAt).Hours()),
		PassExpiry:    vehicle.PassExpiry,
		BaseFee:       baseFee,
		ReEntryFee:    reEntryFee,
		TotalFee:      totalFee,
		Overstay:      overstay,
		Warnings:      vehicle.Warnings,
		Suspended:     vehicle.Suspended,
	}, nil
}
