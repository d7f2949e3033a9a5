package domain

import "time"

// DayKeyFormat is the UTC date bucket used for daily OHLC resets.
const DayKeyFormat = "2006-01-02"

// ManipulationPhase is the lifecycle phase of an admin price manipulation.
type ManipulationPhase string

const (
	// ManipulationActive: price follows the eased trajectory toward EndValue.
	ManipulationActive ManipulationPhase = "ACTIVE"
	// ManipulationCooldown: price blends from EndValue back to the market price.
	ManipulationCooldown ManipulationPhase = "COOLDOWN"
)

// ManipulationState is the sub-record of a PriceState while a manipulation
// window or its cooldown is in effect. Absence (nil on PriceState) means no
// manipulation. At most one exists per symbol; a new command overwrites it.
type ManipulationState struct {
	Phase           ManipulationPhase
	StartTime       time.Time
	EndTime         time.Time
	EndValue        float64
	OriginalPrice   float64   // price at manipulation creation
	DurationMs      int64     // EndTime - StartTime
	CoolDownEndTime time.Time // set when entering cooldown
}

// NewManipulation creates an active manipulation starting from originalPrice.
func NewManipulation(startTime, endTime time.Time, endValue, originalPrice float64) *ManipulationState {
	return &ManipulationState{
		Phase:         ManipulationActive,
		StartTime:     startTime,
		EndTime:       endTime,
		EndValue:      endValue,
		OriginalPrice: originalPrice,
		DurationMs:    endTime.Sub(startTime).Milliseconds(),
	}
}

// EnterCooldown transitions ACTIVE -> COOLDOWN, fixing the cooldown deadline
// at EndTime + half the manipulation duration.
func (m *ManipulationState) EnterCooldown() {
	m.Phase = ManipulationCooldown
	m.CoolDownEndTime = m.EndTime.Add(time.Duration(m.DurationMs/2) * time.Millisecond)
}

// PriceState holds one symbol's current tradable price, its daily OHLC
// envelope, and the optional manipulation sub-record. One writer per symbol
// (the tick driver); everyone else gets copies.
type PriceState struct {
	Symbol       string
	Price        float64
	UpdatedAt    time.Time
	Open         float64
	High         float64
	Low          float64
	LastDayKey   string
	Manipulation *ManipulationState
}

// ResetDay starts a fresh OHLC envelope when the UTC date bucket changes,
// seeded with the first price of the new day.
func (p *PriceState) ResetDay(dayKey string, price float64) {
	p.LastDayKey = dayKey
	p.Open = price
	p.High = price
	p.Low = price
}

// ApplyPrice records a new tick price and extends the daily envelope.
func (p *PriceState) ApplyPrice(price float64, now time.Time) {
	p.Price = price
	p.UpdatedAt = now
	if price > p.High {
		p.High = price
	}
	if price < p.Low {
		p.Low = price
	}
}

// Clone returns a deep copy safe to hand to readers outside the tick loop.
func (p *PriceState) Clone() *PriceState {
	cp := *p
	if p.Manipulation != nil {
		m := *p.Manipulation
		cp.Manipulation = &m
	}
	return &cp
}
