package engine

// Slot identifies one of the independent countdowns a session can hold.
type Slot int

const (
	// SlotTurn is the per-action timeout.
	SlotTurn Slot = iota
	// SlotPhase covers lobby and round timeouts and delayed transitions.
	SlotPhase
	slotCount
)

// Countdown is decremented once per clock tick and fires its signal at zero.
type Countdown struct {
	Remaining int
	Fire      Signal
}

func (c Countdown) Active() bool { return c.Remaining > 0 }

// Countdowns holds every slot of a session. Only the owning coordinator touches it.
type Countdowns [slotCount]Countdown

// Start arms (or re-arms) a slot. Anything below one tick fires on the next tick.
func (cs *Countdowns) Start(slot Slot, ticks int, sig Signal) {
	if ticks < 1 {
		ticks = 1
	}
	cs[slot] = Countdown{Remaining: ticks, Fire: sig}
}

func (cs *Countdowns) Clear(slot Slot) {
	cs[slot] = Countdown{}
}

func (cs *Countdowns) Remaining(slot Slot) int {
	return cs[slot].Remaining
}

// AnyActive reports whether a tick could change anything.
func (cs *Countdowns) AnyActive() bool {
	for _, c := range cs {
		if c.Active() {
			return true
		}
	}
	return false
}

// Tick decrements every active slot and returns the signals of the ones that
// expired, clearing them so each expiry fires exactly once.
func (cs *Countdowns) Tick() []Signal {
	var fired []Signal
	for i := range cs {
		if !cs[i].Active() {
			continue
		}
		cs[i].Remaining--
		if cs[i].Remaining == 0 {
			fired = append(fired, cs[i].Fire)
			cs[i] = Countdown{}
		}
	}
	return fired
}
