package parking

import (
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"parking-engine/internal/logging"
)

const maxTicketAttempts = 16

// ParkingLot owns every slot, the membership pass registry and the per-plate
// profiles. All state is guarded by mu: exported methods take it once and
// composite operations go through the unexported ...Locked helpers, so a
// whole allocation or exit observes and mutates one consistent snapshot.
type ParkingLot struct {
	mu sync.RWMutex

	rules  Rules
	layout Layout
	clock  clock.PassiveClock

	slots    []*Slot
	tickets  map[string]*Slot
	passes   *PassRegistry
	profiles map[string]*Profile

	newTicket func() string
}

type Option func(*ParkingLot)

func WithClock(c clock.PassiveClock) Option {
	return func(pl *ParkingLot) {
		pl.clock = c
	}
}

func WithLayout(l Layout) Option {
	return func(pl *ParkingLot) {
		pl.layout = l
	}
}

func withTicketSource(f func() string) Option {
	return func(pl *ParkingLot) {
		pl.newTicket = f
	}
}

func NewParkingLot(rules Rules, opts ...Option) (*ParkingLot, error) {
	if err := rules.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid rules")
	}

	pl := &ParkingLot{
		rules:     rules.clone(),
		layout:    DefaultLayout(),
		clock:     clock.RealClock{},
		tickets:   make(map[string]*Slot),
		profiles:  make(map[string]*Profile),
		newTicket: shortTicket,
	}
	for _, opt := range opts {
		opt(pl)
	}
	if err := pl.layout.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid layout")
	}
	pl.passes = NewPassRegistry(pl.rules.MembershipPeriod)

	pl.slots = make([]*Slot, 0, pl.layout.Capacity())
	for level := 1; level <= pl.layout.Levels; level++ {
		for _, section := range Sections {
			for _, size := range Sizes {
				for i := 1; i <= pl.layout.perSize(section); i++ {
					pl.slots = append(pl.slots, NewSlot(level, section, size, i))
				}
			}
		}
	}

	return pl, nil
}

func shortTicket() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Request is an incoming parking request.
type Request struct {
	Size  Size
	Tier  Tier
	Plate string
	IsEV  bool
}

func (r Request) validate() error {
	if strings.TrimSpace(r.Plate) == "" {
		return errors.Wrap(ErrInvalidRequest, "license plate is required")
	}
	return nil
}

type Allocation struct {
	SlotID      string     `json:"slot_id"`
	Ticket      string     `json:"ticket"`
	Level       int        `json:"level"`
	Section     Section    `json:"section"`
	Size        Size       `json:"vehicle_type"`
	Tier        Tier       `json:"customer_type"`
	Plate       string     `json:"license_plate"`
	AllocatedAt time.Time  `json:"allocation_time"`
	PassExpiry  *time.Time `json:"pass_expiry,omitempty"`
	ReEntry     bool       `json:"re_entry"`
}

// Allocate validates the entry policy, picks a slot following the section
// priority for the request and binds a new ticket to it.
func (pl *ParkingLot) Allocate(req Request) (Allocation, error) {
	if err := req.validate(); err != nil {
		return Allocation{}, err
	}

	pl.mu.Lock()
	defer pl.mu.Unlock()

	now := pl.clock.Now()
	profile, known := pl.profiles[req.Plate]
	if !known {
		profile = NewProfile(req.Plate)
	}
	vehicle := NewVehicle(req.Size, req.Tier, req.Plate, profile)

	if err := pl.validateEntryLocked(vehicle, now); err != nil {
		return Allocation{}, err
	}

	if vehicle.Tier == TierMember {
		if expiry, ok := pl.passes.Active(vehicle.Plate, now); ok {
			vehicle.PassExpiry = &expiry
		}
	}

	slot := pl.findSlotLocked(req.Size, req.Tier, req.IsEV)
	if slot == nil {
		return Allocation{}, ErrNotAvailable
	}

	ticket, err := pl.issueTicketLocked()
	if err != nil {
		return Allocation{}, err
	}
	vehicle.Ticket = ticket

	if err := slot.Park(vehicle, now); err != nil {
		logging.Logger().Error().Err(err).Str("slot", slot.ID).Msg("invariant violation during allocation")
		return Allocation{}, err
	}
	pl.tickets[ticket] = slot

	if !known {
		pl.profiles[req.Plate] = profile
	}
	if vehicle.Tier == TierMember && vehicle.PassExpiry == nil {
		pl.passes.Renew(vehicle.Plate, now)
	}
	reEntry := pl.isReEntryLocked(profile, now)
	if reEntry {
		profile.RecordReEntry(now)
	}

	return Allocation{
		SlotID:      slot.ID,
		Ticket:      ticket,
		Level:       slot.Level,
		Section:     slot.Section,
		Size:        slot.Size,
		Tier:        vehicle.Tier,
		Plate:       vehicle.Plate,
		AllocatedAt: now,
		PassExpiry:  vehicle.PassExpiry,
		ReEntry:     reEntry,
	}, nil
}

// ValidateEntry runs the entry policy without allocating. Like the check made
// by Allocate, it resets an elapsed re-entry counter.
func (pl *ParkingLot) ValidateEntry(req Request) error {
	if err := req.validate(); err != nil {
		return err
	}

	pl.mu.Lock()
	defer pl.mu.Unlock()

	profile, ok := pl.profiles[req.Plate]
	if !ok {
		profile = NewProfile(req.Plate)
	}
	return pl.validateEntryLocked(NewVehicle(req.Size, req.Tier, req.Plate, profile), pl.clock.Now())
}

func (pl *ParkingLot) validateEntryLocked(v *Vehicle, now time.Time) error {
	if v.Suspended {
		return denied(reasonSuspendedPrefix + v.SuspensionReason)
	}

	if v.Size == SizeLarge && pl.rules.InPeakHours(now) {
		return denied(reasonPeakHours)
	}

	if !v.CanReEnter(now, &pl.rules) {
		return denied(reasonMaxReEntries)
	}

	// Members may hold several slots under one plate.
	if v.Tier == TierStandard {
		for _, slot := range pl.slots {
			if slot.IsOccupied && slot.Vehicle.Plate == v.Plate {
				return denied(reasonAlreadyParked)
			}
		}
	}

	return nil
}

func (pl *ParkingLot) findSlotLocked(size Size, tier Tier, isEV bool) *Slot {
	for _, section := range sectionOrder(tier, isEV) {
		if slot := pl.findSlotInSectionLocked(size, section); slot != nil {
			return slot
		}
	}
	return nil
}

// findSlotInSectionLocked prefers the lowest level, then construction order.
func (pl *ParkingLot) findSlotInSectionLocked(size Size, section Section) *Slot {
	var best *Slot
	for _, slot := range pl.slots {
		if slot.IsOccupied || slot.Section != section || slot.Size != size {
			continue
		}
		if best == nil || slot.Level < best.Level {
			best = slot
		}
	}
	return best
}

func (pl *ParkingLot) issueTicketLocked() (string, error) {
	for i := 0; i < maxTicketAttempts; i++ {
		ticket := pl.newTicket()
		if _, taken := pl.tickets[ticket]; !taken {
			return ticket, nil
		}
	}
	return "", errors.AssertionFailedf("no unique ticket after %d attempts", maxTicketAttempts)
}

func (pl *ParkingLot) isReEntryLocked(profile *Profile, now time.Time) bool {
	last, ok := profile.lastExit()
	return ok && now.Sub(last) <= pl.rules.ReEntryWindow
}

// Release unbinds the slot holding ticket without billing. The returned
// snapshot keeps the allocation time of the finished stay.
func (pl *ParkingLot) Release(ticket string) (SlotInfo, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	slot, err := pl.releaseLocked(ticket)
	if err != nil {
		return SlotInfo{}, err
	}
	return slot.Info(&pl.rules, pl.clock.Now()), nil
}

func (pl *ParkingLot) releaseLocked(ticket string) (*Slot, error) {
	slot, err := pl.findByTicketLocked(ticket)
	if err != nil {
		return nil, err
	}
	slot.Leave()
	delete(pl.tickets, ticket)
	return slot, nil
}

func (pl *ParkingLot) FindByTicket(ticket string) (SlotInfo, error) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	slot, err := pl.findByTicketLocked(ticket)
	if err != nil {
		return SlotInfo{}, err
	}
	return slot.Info(&pl.rules, pl.clock.Now()), nil
}

func (pl *ParkingLot) findByTicketLocked(ticket string) (*Slot, error) {
	slot, ok := pl.tickets[ticket]
	if !ok || !slot.IsOccupied || slot.Vehicle.Ticket != ticket {
		return nil, errors.Wrapf(ErrNotFound, "ticket %q", ticket)
	}
	return slot, nil
}

// Pass reports the membership pass registered for plate.
func (pl *ParkingLot) Pass(plate string) PassStatus {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	status := PassStatus{Plate: plate, State: pl.passes.State(plate, pl.clock.Now())}
	if expiry, ok := pl.passes.Lookup(plate); ok {
		status.Expiry = &expiry
	}
	return status
}

// Profile returns a copy of the policy state recorded for plate.
func (pl *ParkingLot) Profile(plate string) (Profile, bool) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	p, ok := pl.profiles[plate]
	if !ok {
		return Profile{}, false
	}
	cp := *p
	cp.Sessions = append([]Session(nil), p.Sessions...)
	return cp, true
}

func (pl *ParkingLot) Capacity() int {
	return len(pl.slots)
}

func (pl *ParkingLot) Rules() Rules {
	return pl.rules.clone()
}

func (pl *ParkingLot) Now() time.Time {
	return pl.clock.Now()
}
