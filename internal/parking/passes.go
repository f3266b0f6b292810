package parking

import "time"

type PassState string

const (
	PassUnregistered PassState = "unregistered"
	PassActive       PassState = "active"
	PassExpired      PassState = "expired"
)

// PassRegistry maps a plate to the expiry of its membership pass. Entries are
// only ever overwritten on renewal. It is not safe for concurrent use; the
// ParkingLot guards it with its own lock.
type PassRegistry struct {
	period time.Duration
	passes map[string]time.Time
}

func NewPassRegistry(period time.Duration) *PassRegistry {
	return &PassRegistry{
		period: period,
		passes: make(map[string]time.Time),
	}
}

func (r *PassRegistry) Lookup(plate string) (time.Time, bool) {
	expiry, ok := r.passes[plate]
	return expiry, ok
}

// Active returns the expiry of plate's pass if it is still valid at now.
func (r *PassRegistry) Active(plate string, now time.Time) (time.Time, bool) {
	expiry, ok := r.passes[plate]
	if !ok || !now.Before(expiry) {
		return time.Time{}, false
	}
	return expiry, true
}

func (r *PassRegistry) Renew(plate string, now time.Time) time.Time {
	expiry := now.Add(r.period)
	r.passes[plate] = expiry
	return expiry
}

func (r *PassRegistry) State(plate string, now time.Time) PassState {
	expiry, ok := r.passes[plate]
	switch {
	case !ok:
		return PassUnregistered
	case now.Before(expiry):
		return PassActive
	default:
		return PassExpired
	}
}

func (r *PassRegistry) ActiveCount(now time.Time) int {
	n := 0
	for _, expiry := range r.passes {
		if now.Before(expiry) {
			n++
		}
	}
	return n
}

type PassStatus struct {
	Plate  string     `json:"license_plate"`
	State  PassState  `json:"state"`
	Expiry *time.Time `json:"expiry,omitempty"`
}
