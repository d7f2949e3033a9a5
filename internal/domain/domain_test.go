package domain

import (
	"testing"
	"time"
)

func TestPriceStateResetDay(t *testing.T) {
	p := &PriceState{
		Symbol: "BTCUSDT", Price: 45000,
		Open: 44000, High: 46000, Low: 43500,
		LastDayKey: "2025-06-14",
	}
	// The new day's envelope seeds with the new day's first price, not the
	// previous close.
	p.ResetDay("2025-06-15", 45250)

	if p.LastDayKey != "2025-06-15" {
		t.Errorf("LastDayKey = %q, want 2025-06-15", p.LastDayKey)
	}
	if p.Open != 45250 || p.High != 45250 || p.Low != 45250 {
		t.Errorf("envelope not reset to first price of day: open=%v high=%v low=%v", p.Open, p.High, p.Low)
	}
}

func TestPriceStateApplyPriceExtendsEnvelope(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	p := &PriceState{Price: 100, Open: 100, High: 100, Low: 100}

	p.ApplyPrice(110, now)
	if p.High != 110 || p.Low != 100 {
		t.Errorf("after up-tick: high=%v low=%v", p.High, p.Low)
	}
	p.ApplyPrice(95, now)
	if p.High != 110 || p.Low != 95 {
		t.Errorf("after down-tick: high=%v low=%v", p.High, p.Low)
	}
	if p.Price != 95 || !p.UpdatedAt.Equal(now) {
		t.Errorf("price=%v updatedAt=%v", p.Price, p.UpdatedAt)
	}
}

func TestPriceStateCloneIsDeep(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	p := &PriceState{
		Symbol:       "BTCUSDT",
		Price:        45000,
		Manipulation: NewManipulation(now, now.Add(time.Minute), 50000, 45000),
	}
	cp := p.Clone()
	cp.Manipulation.EndValue = 1

	if p.Manipulation.EndValue != 50000 {
		t.Error("clone shares the manipulation record with the original")
	}
}

func TestManipulationCooldownIsHalfDuration(t *testing.T) {
	start := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	end := start.Add(10 * time.Minute)
	m := NewManipulation(start, end, 50000, 45000)

	if m.Phase != ManipulationActive {
		t.Fatalf("phase = %q, want ACTIVE", m.Phase)
	}
	if m.DurationMs != 600000 {
		t.Fatalf("DurationMs = %d, want 600000", m.DurationMs)
	}

	m.EnterCooldown()
	if m.Phase != ManipulationCooldown {
		t.Errorf("phase = %q, want COOLDOWN", m.Phase)
	}
	want := end.Add(5 * time.Minute)
	if !m.CoolDownEndTime.Equal(want) {
		t.Errorf("CoolDownEndTime = %v, want %v", m.CoolDownEndTime, want)
	}
}

func TestOCOPairSiblingID(t *testing.T) {
	pair := &OCOPair{StopOrderID: "a", LimitOrderID: "b"}
	if got := pair.SiblingID("a"); got != "b" {
		t.Errorf("SiblingID(a) = %q, want b", got)
	}
	if got := pair.SiblingID("b"); got != "a" {
		t.Errorf("SiblingID(b) = %q, want a", got)
	}
}

func TestExecutionPrice(t *testing.T) {
	stopLimit := &ConditionalOrder{Kind: OrderStopLimit, StopPrice: 100, LimitPrice: 101}
	if got := stopLimit.ExecutionPrice(); got != 101 {
		t.Errorf("stop-limit execution price = %v, want limit 101", got)
	}
	trailing := &ConditionalOrder{Kind: OrderTrailingStop, StopPrice: 95}
	if got := trailing.ExecutionPrice(); got != 95 {
		t.Errorf("trailing execution price = %v, want stop 95", got)
	}
}
