package parking

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func park(t *testing.T, lot *ParkingLot, size Size, tier Tier, plate string, isEV bool) Allocation {
	t.Helper()

	allocation, err := lot.Allocate(Request{Size: size, Tier: tier, Plate: plate, IsEV: isEV})
	require.NoError(t, err)
	return allocation
}

func TestNewParkingLot(t *testing.T) {
	lot, _ := newTestLot(t)

	assert.Equal(t, 186, lot.Capacity())

	ids := make(map[string]bool)
	partitions := make(map[string]int)
	for _, slot := range lot.slots {
		assert.False(t, ids[slot.ID], "duplicate slot id %s", slot.ID)
		ids[slot.ID] = true
		partitions[fmt.Sprintf("%d/%s/%s", slot.Level, slot.Section, slot.Size)]++
	}
	assert.Equal(t, 15, partitions["1/Standard/Small"])
	assert.Equal(t, 10, partitions["2/Member/Large"])
	assert.Equal(t, 6, partitions["1/EV/Medium"])
	assert.Len(t, partitions, 2*3*3)
}

func TestNewParkingLotRejectsInvalidConfiguration(t *testing.T) {
	rules := DefaultRules()
	rules.MembershipRates.Small = 5000
	_, err := NewParkingLot(rules)
	assert.Error(t, err)

	_, err = NewParkingLot(DefaultRules(), WithLayout(Layout{Levels: 0, Standard: 1}))
	assert.Error(t, err)
}

// A Standard Small request takes the level 1 Standard slot.
func TestAllocateLowestLevelFirst(t *testing.T) {
	lot, _ := newTestLot(t, WithLayout(Layout{Levels: 2, Standard: 1, Member: 1, EV: 1}))

	allocation := park(t, lot, SizeSmall, TierStandard, "KA01HH1234", false)
	assert.Equal(t, "S1S01", allocation.SlotID)
	assert.Equal(t, 1, allocation.Level)
	assert.Equal(t, SectionStandard, allocation.Section)
	assert.Len(t, allocation.Ticket, 8)

	allocation = park(t, lot, SizeSmall, TierStandard, "KA01HH5678", false)
	assert.Equal(t, "S2S01", allocation.SlotID)
}

func TestAllocateFillsLevelBeforeNext(t *testing.T) {
	lot, _ := newTestLot(t)

	for i := 1; i <= 15; i++ {
		allocation := park(t, lot, SizeSmall, TierStandard, fmt.Sprintf("PLATE%02d", i), false)
		assert.Equal(t, fmt.Sprintf("S1S%02d", i), allocation.SlotID)
	}
	assert.Equal(t, "S2S01", park(t, lot, SizeSmall, TierStandard, "PLATE16", false).SlotID)
}

func TestAllocatePrimarySection(t *testing.T) {
	tests := []struct {
		name     string
		tier     Tier
		isEV     bool
		expected Section
	}{
		{"standard", TierStandard, false, SectionStandard},
		{"member", TierMember, false, SectionMember},
		{"ev standard", TierStandard, true, SectionEV},
		{"ev member", TierMember, true, SectionEV},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lot, _ := newTestLot(t)
			allocation := park(t, lot, SizeMedium, tt.tier, "KA01HH1234", tt.isEV)
			assert.Equal(t, tt.expected, allocation.Section)
			assert.Equal(t, SizeMedium, allocation.Size)
		})
	}
}

// Every request falls back through the remaining sections before giving up.
func TestAllocateSectionFallback(t *testing.T) {
	tests := []struct {
		name string
		tier Tier
		isEV bool
	}{
		{"ev member", TierMember, true},
		{"ev standard", TierStandard, true},
		{"member", TierMember, false},
		{"standard", TierStandard, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lot, _ := newTestLot(t, WithLayout(Layout{Levels: 1, Standard: 1, Member: 1, EV: 1}))

			for i, expected := range sectionOrder(tt.tier, tt.isEV) {
				allocation := park(t, lot, SizeLarge, tt.tier, fmt.Sprintf("PLATE%d", i), tt.isEV)
				assert.Equal(t, expected, allocation.Section)
			}

			_, err := lot.Allocate(Request{Size: SizeLarge, Tier: tt.tier, Plate: "PLATE9", IsEV: tt.isEV})
			assert.ErrorIs(t, err, ErrNotAvailable)
		})
	}
}

// Standard Medium with Standard and EV full lands in Member.
func TestAllocateStandardFallsBackToMember(t *testing.T) {
	lot, _ := newTestLot(t, WithLayout(Layout{Levels: 1, Standard: 1, Member: 1, EV: 1}))

	park(t, lot, SizeMedium, TierStandard, "PLATE1", false)
	park(t, lot, SizeMedium, TierStandard, "PLATE2", true)

	allocation := park(t, lot, SizeMedium, TierStandard, "PLATE3", false)
	assert.Equal(t, "M1M01", allocation.SlotID)
	assert.Equal(t, SectionMember, allocation.Section)
}

func TestAllocateNeverUsesOtherSizes(t *testing.T) {
	lot, _ := newTestLot(t, WithLayout(Layout{Levels: 1, Standard: 1}))

	park(t, lot, SizeSmall, TierStandard, "PLATE1", false)
	_, err := lot.Allocate(Request{Size: SizeSmall, Tier: TierStandard, Plate: "PLATE2"})
	assert.ErrorIs(t, err, ErrNotAvailable)

	counts := lot.AvailableCounts()
	assert.Equal(t, 1, counts[SizeMedium][SectionStandard])
	assert.Equal(t, 1, counts[SizeLarge][SectionStandard])
}

func TestAllocateRejectsMissingPlate(t *testing.T) {
	lot, _ := newTestLot(t)

	_, err := lot.Allocate(Request{Size: SizeSmall, Tier: TierStandard, Plate: "  "})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.Equal(t, 0, lot.Status().Occupied)
}

// A Member without a pass buys one with the first stay.
func TestMemberFirstStayBuysPass(t *testing.T) {
	lot, clk := newTestLot(t)

	first := park(t, lot, SizeSmall, TierMember, "KA01VIP001", false)
	assert.Nil(t, first.PassExpiry)
	assert.False(t, first.ReEntry)

	pass := lot.Pass("KA01VIP001")
	assert.Equal(t, PassActive, pass.State)
	require.NotNil(t, pass.Expiry)
	assert.Equal(t, baseTime.Add(30*24*time.Hour), *pass.Expiry)

	result, err := lot.ProcessExit(first.Ticket)
	require.NoError(t, err)
	assert.Equal(t, 1050.0, result.BaseFee)
	assert.Zero(t, result.ReEntryFee)
	assert.Equal(t, 1050.0, result.TotalFee)
	assert.False(t, result.Overstay)

	clk.Step(2 * time.Hour)
	second := park(t, lot, SizeSmall, TierMember, "KA01VIP001", false)
	require.NotNil(t, second.PassExpiry)
	assert.Equal(t, *pass.Expiry, *second.PassExpiry)
	assert.True(t, second.ReEntry)

	clk.Step(5 * time.Hour)
	result, err = lot.ProcessExit(second.Ticket)
	require.NoError(t, err)
	assert.Zero(t, result.BaseFee)
	assert.Equal(t, 20.0, result.ReEntryFee)
	assert.Equal(t, 20.0, result.TotalFee)
}

func TestMemberPassExpires(t *testing.T) {
	lot, clk := newTestLot(t)

	allocation := park(t, lot, SizeMedium, TierMember, "KA01VIP001", false)
	_, err := lot.ProcessExit(allocation.Ticket)
	require.NoError(t, err)

	clk.Step(31 * 24 * time.Hour)
	assert.Equal(t, PassExpired, lot.Pass("KA01VIP001").State)

	allocation = park(t, lot, SizeMedium, TierMember, "KA01VIP001", false)
	assert.Nil(t, allocation.PassExpiry)
	assert.Equal(t, PassActive, lot.Pass("KA01VIP001").State)

	result, err := lot.ProcessExit(allocation.Ticket)
	require.NoError(t, err)
	assert.Equal(t, 2100.0, result.BaseFee)
}

// A Standard Medium stay of 30 hours is billed two days plus six
// hours of overstay.
func TestStandardOverstay(t *testing.T) {
	lot, clk := newTestLot(t)

	allocation := park(t, lot, SizeMedium, TierStandard, "KA01HH1234", false)
	clk.Step(30 * time.Hour)

	expired := lot.ExpiredSlots()
	require.Len(t, expired, 1)
	assert.Equal(t, allocation.SlotID, expired[0].ID)

	result, err := lot.ProcessExit(allocation.Ticket)
	require.NoError(t, err)
	assert.Equal(t, 350.0, result.BaseFee)
	assert.Equal(t, 350.0, result.TotalFee)
	assert.Equal(t, 30.0, result.DurationHours)
	assert.True(t, result.Overstay)
	assert.Equal(t, 1, result.Warnings)
	assert.False(t, result.Suspended)

	profile, ok := lot.Profile("KA01HH1234")
	require.True(t, ok)
	assert.Equal(t, "overstay violation", profile.LastWarning)
	assert.Equal(t, 350.0, profile.FeesPaid)
	require.Len(t, profile.Sessions, 1)
	assert.Equal(t, 30*time.Hour, profile.Sessions[0].Duration())
}

func TestSuspendedAfterThreeOverstays(t *testing.T) {
	lot, clk := newTestLot(t)

	var last ExitResult
	for i := 0; i < 3; i++ {
		allocation := park(t, lot, SizeSmall, TierStandard, "KA01HH1234", false)
		clk.Step(25 * time.Hour)

		var err error
		last, err = lot.ProcessExit(allocation.Ticket)
		require.NoError(t, err)
		assert.True(t, last.Overstay)
	}
	assert.Equal(t, 3, last.Warnings)
	assert.True(t, last.Suspended)

	_, err := lot.Allocate(Request{Size: SizeSmall, Tier: TierStandard, Plate: "KA01HH1234"})
	reason, ok := IsDenied(err)
	require.True(t, ok, "expected denial, got %v", err)
	assert.Equal(t, "suspended: multiple violations", reason)

	// Suspension is not lifted by time.
	clk.Step(90 * 24 * time.Hour)
	_, err = lot.Allocate(Request{Size: SizeSmall, Tier: TierMember, Plate: "KA01HH1234"})
	_, ok = IsDenied(err)
	assert.True(t, ok)
	assert.Equal(t, 0, lot.Status().Occupied)
}

func TestPeakHourRestriction(t *testing.T) {
	lot, clk := newTestLot(t)

	clk.SetTime(time.Date(2025, time.November, 13, 9, 30, 0, 0, time.UTC))
	_, err := lot.Allocate(Request{Size: SizeLarge, Tier: TierMember, Plate: "TRUCK01"})
	reason, ok := IsDenied(err)
	require.True(t, ok)
	assert.Equal(t, "peak-hour restriction", reason)

	park(t, lot, SizeSmall, TierStandard, "CAR01", false)
	park(t, lot, SizeMedium, TierStandard, "CAR02", false)

	clk.SetTime(time.Date(2025, time.November, 13, 11, 0, 0, 0, time.UTC))
	_, err = lot.Allocate(Request{Size: SizeLarge, Tier: TierStandard, Plate: "TRUCK01"})
	_, ok = IsDenied(err)
	assert.True(t, ok, "window end is inclusive")

	clk.SetTime(time.Date(2025, time.November, 13, 11, 1, 0, 0, time.UTC))
	park(t, lot, SizeLarge, TierStandard, "TRUCK01", false)
}

func TestMaxReEntries(t *testing.T) {
	lot, clk := newTestLot(t)

	for i := 0; i < 4; i++ {
		allocation := park(t, lot, SizeSmall, TierStandard, "KA01HH1234", false)
		assert.Equal(t, i > 0, allocation.ReEntry)
		clk.Step(time.Hour)
		_, err := lot.ProcessExit(allocation.Ticket)
		require.NoError(t, err)
	}

	err := lot.ValidateEntry(Request{Size: SizeSmall, Tier: TierStandard, Plate: "KA01HH1234"})
	reason, ok := IsDenied(err)
	require.True(t, ok)
	assert.Equal(t, "max re-entries exceeded", reason)

	// The counter resets once the window has passed since the last re-entry.
	clk.Step(25 * time.Hour)
	allocation := park(t, lot, SizeSmall, TierStandard, "KA01HH1234", false)
	assert.False(t, allocation.ReEntry)

	result, err := lot.ProcessExit(allocation.Ticket)
	require.NoError(t, err)
	assert.Zero(t, result.ReEntryFee)
}

func TestAlreadyParked(t *testing.T) {
	lot, _ := newTestLot(t)

	park(t, lot, SizeSmall, TierStandard, "KA01HH1234", false)
	_, err := lot.Allocate(Request{Size: SizeMedium, Tier: TierStandard, Plate: "KA01HH1234"})
	reason, ok := IsDenied(err)
	require.True(t, ok)
	assert.Equal(t, "already parked", reason)

	park(t, lot, SizeSmall, TierMember, "KA01VIP001", false)
	second := park(t, lot, SizeSmall, TierMember, "KA01VIP001", false)
	assert.NotNil(t, second.PassExpiry)
}

func TestProcessExitUnknownTicket(t *testing.T) {
	lot, _ := newTestLot(t)

	_, err := lot.ProcessExit("NOPE0000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProcessExitIsNotRepeatable(t *testing.T) {
	lot, _ := newTestLot(t)

	allocation := park(t, lot, SizeSmall, TierStandard, "KA01HH1234", false)
	_, err := lot.ProcessExit(allocation.Ticket)
	require.NoError(t, err)

	before := lot.Status()
	_, err = lot.ProcessExit(allocation.Ticket)
	assert.ErrorIs(t, err, ErrNotFound)
	after := lot.Status()

	assert.Equal(t, before.Occupied, after.Occupied)
	assert.Equal(t, before.Availability, after.Availability)

	profile, _ := lot.Profile("KA01HH1234")
	assert.Len(t, profile.Sessions, 1)
}

func TestRelease(t *testing.T) {
	lot, clk := newTestLot(t)

	allocation := park(t, lot, SizeLarge, TierStandard, "KA01HH1234", false)
	clk.Step(time.Hour)

	info, err := lot.Release(allocation.Ticket)
	require.NoError(t, err)
	assert.Equal(t, allocation.SlotID, info.ID)
	assert.False(t, info.Occupied)
	require.NotNil(t, info.AllocatedAt)
	assert.Equal(t, baseTime, *info.AllocatedAt)

	_, err = lot.Release(allocation.Ticket)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = lot.FindByTicket(allocation.Ticket)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByTicket(t *testing.T) {
	lot, _ := newTestLot(t)

	allocation := park(t, lot, SizeMedium, TierMember, "KA01VIP001", true)

	info, err := lot.FindByTicket(allocation.Ticket)
	require.NoError(t, err)
	assert.Equal(t, allocation.SlotID, info.ID)
	assert.Equal(t, "KA01VIP001", info.Plate)
	assert.True(t, info.Occupied)
	require.NotNil(t, info.Tier)
	assert.Equal(t, TierMember, *info.Tier)
}

func TestTicketCollisionIsRetried(t *testing.T) {
	lot, _ := newTestLot(t, withTicketSource(fixedTickets("AAAAAAAA", "AAAAAAAA", "BBBBBBBB")))

	assert.Equal(t, "AAAAAAAA", park(t, lot, SizeSmall, TierStandard, "PLATE1", false).Ticket)
	assert.Equal(t, "BBBBBBBB", park(t, lot, SizeSmall, TierStandard, "PLATE2", false).Ticket)
}

func TestTicketExhaustionLeavesPoolUnchanged(t *testing.T) {
	lot, _ := newTestLot(t, withTicketSource(fixedTickets("AAAAAAAA")))

	park(t, lot, SizeSmall, TierStandard, "PLATE1", false)

	_, err := lot.Allocate(Request{Size: SizeSmall, Tier: TierStandard, Plate: "PLATE2"})
	require.Error(t, err)
	assert.True(t, IsInvariantViolation(err))
	assert.Equal(t, 1, lot.Status().Occupied)

	_, known := lot.Profile("PLATE2")
	assert.False(t, known)
}

func TestStatus(t *testing.T) {
	lot, clk := newTestLot(t)

	park(t, lot, SizeSmall, TierStandard, "KA01HH1234", false)
	park(t, lot, SizeLarge, TierMember, "KA01VIP001", false)
	clk.Step(25 * time.Hour)

	status := lot.Status()
	assert.Equal(t, 186, status.TotalSlots)
	assert.Equal(t, 2, status.Occupied)
	assert.Equal(t, 184, status.Available)
	assert.Equal(t, 1, status.Expired)
	assert.Equal(t, 1, status.ActivePasses)
	assert.Equal(t, 14, status.Availability[SizeSmall][SectionStandard])
	assert.Equal(t, 9, status.Availability[SizeLarge][SectionMember])
	assert.Equal(t, clk.Now(), status.Timestamp)

	require.Len(t, status.Levels, 2)
	assert.Equal(t, LevelStatus{Level: 1, Total: 93, Occupied: 2, Available: 91}, status.Levels[0])
	assert.Equal(t, LevelStatus{Level: 2, Total: 93, Occupied: 0, Available: 93}, status.Levels[1])

	occupied := lot.OccupiedSlots()
	require.Len(t, occupied, 2)
	assert.Equal(t, "KA01HH1234", occupied[0].Plate)
}

func TestConcurrentAllocationKeepsCapacity(t *testing.T) {
	lot, _ := newTestLot(t)

	const requests = 80
	var (
		mu        sync.Mutex
		slots     = make(map[string]bool)
		tickets   = make(map[string]bool)
		rejected  int
		allocated int
	)

	var g errgroup.Group
	for i := 0; i < requests; i++ {
		plate := fmt.Sprintf("PLATE%03d", i)
		g.Go(func() error {
			allocation, err := lot.Allocate(Request{Size: SizeSmall, Tier: TierStandard, Plate: plate})
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, ErrNotAvailable) {
				rejected++
				return nil
			}
			if err != nil {
				return err
			}
			if slots[allocation.SlotID] || tickets[allocation.Ticket] {
				return errors.Newf("slot %s or ticket %s handed out twice", allocation.SlotID, allocation.Ticket)
			}
			slots[allocation.SlotID] = true
			tickets[allocation.Ticket] = true
			allocated++
			return nil
		})
	}
	require.NoError(t, g.Wait())

	smallCapacity := 2 * (15 + 10 + 6)
	assert.Equal(t, smallCapacity, allocated)
	assert.Equal(t, requests-smallCapacity, rejected)

	status := lot.Status()
	assert.Equal(t, smallCapacity, status.Occupied)
	assert.Equal(t, status.TotalSlots, status.Occupied+status.Available)
	for _, section := range Sections {
		assert.Zero(t, status.Availability[SizeSmall][section])
	}
}

func TestConcurrentExitsBillOnce(t *testing.T) {
	lot, _ := newTestLot(t)

	allocation := park(t, lot, SizeSmall, TierStandard, "KA01HH1234", false)

	var (
		g         errgroup.Group
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			_, err := lot.ProcessExit(allocation.Ticket)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			successes++
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 1, successes)

	profile, _ := lot.Profile("KA01HH1234")
	assert.Equal(t, 50.0, profile.FeesPaid)
}
