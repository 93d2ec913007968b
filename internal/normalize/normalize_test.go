package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dvloznov/statement-consolidator/internal/domain"
)

func TestDate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"iso", "2024-01-05", "2024-01-05"},
		{"iso with spaces", "  2024-01-05 ", "2024-01-05"},
		{"day month year", "05 Jan 2024", "2024-01-05"},
		{"month day year", "Jan 5, 2024", "2024-01-05"},
		{"slash month first", "01/05/2024", "2024-01-05"},
		{"dashed", "5-Jan-2024", "2024-01-05"},
		{"unparseable", "  not a date ", "not a date"},
		{"empty", "", ""},
		{"blank", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Date(tt.in))
		})
	}
}

func TestDate_ZonedTimestampUsesLocalCalendarDay(t *testing.T) {
	orig := time.Local
	time.Local = time.FixedZone("EST", -5*60*60)
	t.Cleanup(func() { time.Local = orig })

	assert.Equal(t, "2024-01-04", Date("2024-01-05T01:00:00+08:00"))
	assert.Equal(t, "2024-01-04", Date("2024-01-05T03:00:00Z"))
	assert.Equal(t, "2024-01-05", Date("2024-01-05T23:30:00"))
}

func TestAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"$1,234.5", "1234.50"},
		{"RM 45.00", "45.00"},
		{"-12.345", "-12.35"},
		{"abc", "0.00"},
		{"", "0.00"},
		{"1.2.3", "1.20"},
		{"12-3", "12.00"},
		{"-", "0.00"},
		{".5", "0.50"},
		{"-.5", "-0.50"},
		{"7.", "7.00"},
		{"(45.00)", "45.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Amount(tt.in), "input %q", tt.in)
	}
}

func TestAmountIdempotent(t *testing.T) {
	for _, in := range []string{"$1,234.5", "abc", "-0.001", "1e5", "99.999", "-3"} {
		once := Amount(in)
		assert.Equal(t, once, Amount(once), "input %q", in)
	}
}

func TestDescription(t *testing.T) {
	assert.Equal(t, "starbucks raffles city", Description("  STARBUCKS   Raffles\tCity "))
	assert.Equal(t, "", Description("   "))
	once := Description(" A  b ")
	assert.Equal(t, once, Description(once))
}

func TestFingerprint(t *testing.T) {
	a := domain.Transaction{Date: "05 Jan 2024", Description: "Starbucks  Raffles", Debit: "$12.5"}
	b := domain.Transaction{Date: "2024-01-05", Description: "starbucks raffles", Debit: "12.50"}
	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.Equal(t, Key{Date: "2024-01-05", Amount: "12.50", Description: "starbucks raffles"}, Fingerprint(a))
}

func TestAmountOfPrefersCredit(t *testing.T) {
	assert.Equal(t, "10", AmountOf(domain.Transaction{Credit: "10", Debit: "20"}))
	assert.Equal(t, "20", AmountOf(domain.Transaction{Credit: " ", Debit: "20"}))
}
