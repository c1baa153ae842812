package portfolio

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestTradeSize(t *testing.T) {
	tests := []struct {
		name                              string
		cash, risk, exposure, price, stop string
		want                              string
	}{
		// risk bound 150, exposure bound 60
		{"exposure bound", "30000", "0.01", "0.1", "50", "2", "60"},
		// risk bound 200, exposure bound 25
		{"exposure bound wider stop", "50000", "0.02", "0.05", "100", "5", "25"},
		// risk bound 10, exposure bound 100
		{"risk bound", "10000", "0.01", "0.5", "50", "10", "10"},
		{"zero cash", "0", "0.01", "0.1", "50", "2", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TradeSize(d(tt.cash), d(tt.risk), d(tt.exposure), d(tt.price), d(tt.stop))
			if err != nil {
				t.Fatalf("TradeSize: %v", err)
			}
			if !got.Equal(d(tt.want)) {
				t.Errorf("TradeSize = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTradeSizeRejects(t *testing.T) {
	tests := []struct {
		name              string
		cash, price, stop string
	}{
		{"zero price", "1000", "0", "1"},
		{"negative stop", "1000", "10", "-1"},
		{"zero stop", "1000", "10", "0"},
		{"negative cash", "-5", "10", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TradeSize(d(tt.cash), d("0.01"), d("0.1"), d(tt.price), d(tt.stop))
			if !errors.Is(err, ErrInvalidSizing) {
				t.Errorf("err = %v, want ErrInvalidSizing", err)
			}
		})
	}
}

func TestSizer(t *testing.T) {
	s := NewSizer(DefaultRiskLimits())

	got, err := s.Size(30000, 50, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got.Shares != 60 || got.Capped {
		t.Errorf("Size = %+v, want 60 shares uncapped", got)
	}
	if !got.Notional.Equal(d("3000")) || !got.RiskAmount.Equal(d("120")) {
		t.Errorf("notional %s risk %s, want 3000 and 120", got.Notional, got.RiskAmount)
	}
}

func TestSizerFloorsAndCaps(t *testing.T) {
	// exposure bound 1000*0.1/30 = 3.33...
	s := NewSizer(RiskLimits{RiskPerTrade: 0.5, MaxExposure: 0.1})
	got, err := s.Size(1000, 30, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Shares != 3 {
		t.Errorf("Shares = %d, want 3", got.Shares)
	}

	capped := NewSizer(RiskLimits{RiskPerTrade: 0.01, MaxExposure: 0.1, MaxPositionSize: 40})
	got, err = capped.Size(30000, 50, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got.Shares != 40 || !got.Capped {
		t.Errorf("Size = %+v, want 40 capped", got)
	}
}
