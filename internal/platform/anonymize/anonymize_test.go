package anonymize

import (
	"errors"
	"testing"
	"time"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestShift_DeterministicAndBounded(t *testing.T) {
	a := New("test-secret")
	for _, key := range []string{"C1", "C2", "X.1234.567.89"} {
		s1 := a.Shift(key)
		s2 := a.Shift(key)
		if s1 != s2 {
			t.Errorf("shift for %q not deterministic: %d vs %d", key, s1, s2)
		}
		if s1 < -182 || s1 > 182 {
			t.Errorf("shift for %q out of range: %d", key, s1)
		}
	}
	if New("other-secret").Shift("C1") == a.Shift("C1") {
		t.Log("different secrets produced the same shift; possible but unlikely")
	}
}

func TestDate_PreservesIntervals(t *testing.T) {
	a := New("test-secret")
	d1 := date("2020-01-10")
	d2 := date("2020-03-15")

	s1 := a.Date("C1", d1)
	s2 := a.Date("C1", d2)

	want := d2.Sub(d1)
	if got := s2.Sub(s1); got != want {
		t.Errorf("interval changed: got %v, want %v", got, want)
	}
	if want.Hours()/24 != 65 {
		t.Fatalf("fixture interval should be 65 days, got %v", want)
	}
}

func TestPeriod_ShiftsBothBoundsEqually(t *testing.T) {
	a := New("test-secret")
	start := date("2021-01-01")
	end := date("2021-03-01")

	shiftedStart, shiftedEnd := a.Period("C1", start, &end)
	if shiftedEnd == nil {
		t.Fatal("end bound lost")
	}
	if got, want := shiftedEnd.Sub(shiftedStart), end.Sub(start); got != want {
		t.Errorf("period length changed: got %v, want %v", got, want)
	}

	_, openEnd := a.Period("C1", start, nil)
	if openEnd != nil {
		t.Error("open period end should stay nil")
	}
}

func TestYearOnly(t *testing.T) {
	if got := YearOnly(date("2020-07-14")); got != 2020 {
		t.Errorf("YearOnly = %d, want 2020", got)
	}
}

func TestBinAge(t *testing.T) {
	tests := []struct {
		years int
		want  AgeBin
	}{
		{0, "<20"}, {19, "<20"}, {20, "20-24"}, {24, "20-24"},
		{25, "25-29"}, {47, "45-49"}, {89, "85-89"}, {90, "90+"}, {104, "90+"},
	}
	for _, tt := range tests {
		if got := BinAge(tt.years); got != tt.want {
			t.Errorf("BinAge(%d) = %q, want %q", tt.years, got, tt.want)
		}
	}
}

func TestBinAge_Monotone(t *testing.T) {
	prev := -1
	for years := 0; years <= 120; years++ {
		idx := BinIndex(BinAge(years))
		if idx < prev {
			t.Fatalf("bin order regressed at age %d: index %d < %d", years, idx, prev)
		}
		prev = idx
	}
}

func TestValue_Fallback(t *testing.T) {
	a := New("test-secret")

	if v, err := a.Value("C1", "MRN-1234"); err != nil || v != Redacted {
		t.Errorf("string value: got (%v, %v), want redaction", v, err)
	}
	if _, err := a.Value("C1", 3.14); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("unsupported type should return ErrNotImplemented, got %v", err)
	}
	if v, err := a.Value("C1", 47); err != nil || v != AgeBin("45-49") {
		t.Errorf("int widens to age bin: got (%v, %v)", v, err)
	}
}
