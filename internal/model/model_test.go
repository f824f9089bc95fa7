package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestEntryKindFor(t *testing.T) {
	tests := []struct {
		direction Direction
		outcome   Outcome
		want      EntryKind
		ok        bool
	}{
		{DirectionBuy, OutcomeYes, KindBuyYes, true},
		{DirectionBuy, OutcomeNo, KindBuyNo, true},
		{DirectionSell, OutcomeYes, KindSellYes, true},
		{DirectionSell, OutcomeNo, KindSellNo, true},
		{"HOLD", OutcomeYes, "", false},
		{DirectionBuy, "MAYBE", "", false},
	}
	for _, tt := range tests {
		got, ok := EntryKindFor(tt.direction, tt.outcome)
		if got != tt.want || ok != tt.ok {
			t.Errorf("EntryKindFor(%s,%s) = %s,%v want %s,%v",
				tt.direction, tt.outcome, got, ok, tt.want, tt.ok)
		}
	}
}

func TestQuotesFor(t *testing.T) {
	q := Quotes{
		BuyYes:  decimal.NewFromInt(52),
		BuyNo:   decimal.NewFromInt(48),
		SellYes: decimal.NewFromInt(50),
		SellNo:  decimal.NewFromInt(46),
	}

	if p, ok := q.For(DirectionBuy, OutcomeNo); !ok || !p.Equal(q.BuyNo) {
		t.Errorf("For(BUY,NO) = %s,%v", p, ok)
	}
	if p, ok := q.For(DirectionSell, OutcomeYes); !ok || !p.Equal(q.SellYes) {
		t.Errorf("For(SELL,YES) = %s,%v", p, ok)
	}
	if _, ok := q.For("HOLD", OutcomeYes); ok {
		t.Error("For should reject unknown direction")
	}
}

func TestEventAddShares(t *testing.T) {
	e := &Event{}
	e.AddShares(OutcomeYes, 3)
	e.AddShares(OutcomeNo, 1)
	e.AddShares(OutcomeYes, -1)

	if e.SharesYes != 2 || e.SharesNo != 1 {
		t.Errorf("expected shares 2/1, got %d/%d", e.SharesYes, e.SharesNo)
	}
	if e.SharesFor(OutcomeYes) != 2 || e.SharesFor(OutcomeNo) != 1 {
		t.Error("SharesFor disagrees with fields")
	}
}
