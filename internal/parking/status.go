package parking

import "time"

type LevelStatus struct {
	Level     int `json:"level"`
	Total     int `json:"total"`
	Occupied  int `json:"occupied"`
	Available int `json:"available"`
}

type Status struct {
	TotalSlots   int                      `json:"total_slots"`
	Occupied     int                      `json:"occupied_slots"`
	Available    int                      `json:"available_slots"`
	Expired      int                      `json:"expired_slots"`
	ActivePasses int                      `json:"active_passes"`
	Availability map[Size]map[Section]int `json:"available_counts"`
	Levels       []LevelStatus            `json:"levels"`
	Rules        RuleSummary              `json:"rules"`
	Timestamp    time.Time                `json:"timestamp"`
}

func (pl *ParkingLot) Status() Status {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	now := pl.clock.Now()
	status := Status{
		TotalSlots:   len(pl.slots),
		ActivePasses: pl.passes.ActiveCount(now),
		Availability: pl.availableCountsLocked(),
		Levels:       make([]LevelStatus, pl.layout.Levels),
		Rules:        pl.rules.Summary(),
		Timestamp:    now,
	}
	for i := range status.Levels {
		status.Levels[i].Level = i + 1
	}

	for _, slot := range pl.slots {
		level := &status.Levels[slot.Level-1]
		level.Total++
		if slot.IsOccupied {
			status.Occupied++
			level.Occupied++
		} else {
			level.Available++
		}
		if slot.IsExpired(&pl.rules, now) {
			status.Expired++
		}
	}
	status.Available = status.TotalSlots - status.Occupied

	return status
}

// AvailableCounts returns free slots keyed by size, then section.
func (pl *ParkingLot) AvailableCounts() map[Size]map[Section]int {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	return pl.availableCountsLocked()
}

func (pl *ParkingLot) availableCountsLocked() map[Size]map[Section]int {
	counts := make(map[Size]map[Section]int, len(Sizes))
	for _, size := range Sizes {
		counts[size] = make(map[Section]int, len(Sections))
		for _, section := range Sections {
			counts[size][section] = 0
		}
	}
	for _, slot := range pl.slots {
		if !slot.IsOccupied {
			counts[slot.Size][slot.Section]++
		}
	}
	return counts
}

func (pl *ParkingLot) OccupiedSlots() []SlotInfo {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	now := pl.clock.Now()
	var occupied []SlotInfo
	for _, slot := range pl.slots {
		if slot.IsOccupied {
			occupied = append(occupied, slot.Info(&pl.rules, now))
		}
	}
	return occupied
}

func (pl *ParkingLot) ExpiredSlots() []SlotInfo {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	now := pl.clock.Now()
	var expired []SlotInfo
	for _, slot := range pl.slots {
		if slot.IsExpired(&pl.rules, now) {
			expired = append(expired, slot.Info(&pl.rules, now))
		}
	}
	return expired
}
