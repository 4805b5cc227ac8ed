package therapy

import (
	"errors"
	"testing"

	"github.com/onconova/onconova/pkg/measures"
)

func TestMedicationDosageForms(t *testing.T) {
	tests := []struct {
		name    string
		dosages []measures.Quantity
		wantErr bool
	}{
		{"no dosages", nil, false},
		{"single mass dose", []measures.Quantity{{Value: 200, Unit: "mg"}}, false},
		{"mass and surface dose", []measures.Quantity{
			{Value: 200, Unit: "mg"}, {Value: 75, Unit: "mg/m2"}}, false},
		{"dose and rate", []measures.Quantity{
			{Value: 200, Unit: "mg"}, {Value: 10, Unit: "mg/h"}}, false},
		{"two mass doses", []measures.Quantity{
			{Value: 200, Unit: "mg"}, {Value: 0.2, Unit: "g"}}, true},
		{"two surface doses", []measures.Quantity{
			{Value: 75, Unit: "mg/m2"}, {Value: 100, Unit: "mg/m2"}}, true},
		{"unknown unit", []measures.Quantity{{Value: 1, Unit: "stone"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := drug("L01FF02", "Pembrolizumab", CategoryImmunotherapy)
			m.Dosages = tt.dosages
			err := m.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateSystemicTherapyRejectsDuplicateDosageForms(t *testing.T) {
	env := newTestEnv()
	ctx := authedContext("curator", 3)

	therapy := pembrolizumab(env.caseID, day(2021, 1, 1), day(2021, 3, 1))
	therapy.Medications[0].Dosages = []measures.Quantity{
		{Value: 200, Unit: "mg"},
		{Value: 0.2, Unit: "g"},
	}
	if err := env.svc.CreateSystemicTherapy(ctx, therapy); !errors.Is(err, ErrInvalid) {
		t.Fatalf("got %v, want a validation failure", err)
	}
}
