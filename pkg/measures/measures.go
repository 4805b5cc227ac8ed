package measures

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrUnknownMeasure is returned when no measure is registered
	// under the requested name.
	ErrUnknownMeasure = errors.New("unknown measure")
	// ErrUnknownUnit marks a conversion against an unsupported unit;
	// it surfaces as a validation failure at the transport boundary.
	ErrUnknownUnit = errors.New("unknown unit")
)

// Quantity is the serialized form of every dimensional value.
type Quantity struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Measure is a dimensional quantity type with a canonical unit, linear
// (or affine, for temperature) conversions and unit aliases.
type Measure struct {
	Name      string
	Canonical string
	factors   map[string]float64
	offsets   map[string]float64
	aliases   map[string]string
}

// Units returns the supported unit symbols, canonical first.
func (m *Measure) Units() []string {
	units := make([]string, 0, len(m.factors))
	for u := range m.factors {
		if u != m.Canonical {
			units = append(units, u)
		}
	}
	sort.Strings(units)
	return append([]string{m.Canonical}, units...)
}

func (m *Measure) resolve(unit string) (string, bool) {
	if _, ok := m.factors[unit]; ok {
		return unit, true
	}
	if canonical, ok := m.aliases[unit]; ok {
		return canonical, true
	}
	return "", false
}

// Convert converts a value between two supported units.
func (m *Measure) Convert(value float64, from, to string) (float64, error) {
	f, ok := m.resolve(from)
	if !ok {
		return 0, fmt.Errorf("%w: %q for measure %s", ErrUnknownUnit, from, m.Name)
	}
	t, ok := m.resolve(to)
	if !ok {
		return 0, fmt.Errorf("%w: %q for measure %s", ErrUnknownUnit, to, m.Name)
	}
	canonical := value*m.factors[f] + m.offsets[f]
	return (canonical - m.offsets[t]) / m.factors[t], nil
}

// ToCanonical converts a quantity into the measure's canonical unit.
func (m *Measure) ToCanonical(q Quantity) (Quantity, error) {
	v, err := m.Convert(q.Value, q.Unit, m.Canonical)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Value: v, Unit: m.Canonical}, nil
}

func newMeasure(name, canonical string, factors map[string]float64) *Measure {
	return &Measure{
		Name:      name,
		Canonical: canonical,
		factors:   factors,
		offsets:   map[string]float64{},
		aliases:   map[string]string{},
	}
}

func (m *Measure) withAliases(aliases map[string]string) *Measure {
	for alias, unit := range aliases {
		m.aliases[alias] = unit
	}
	return m
}

// compose builds the ratio measure num/den, with units formed from every
// pair of component units.
func compose(name string, num, den *Measure) *Measure {
	factors := make(map[string]float64, len(num.factors)*len(den.factors))
	for nu, nf := range num.factors {
		for du, df := range den.factors {
			factors[nu+"/"+du] = nf / df
		}
	}
	return newMeasure(name, num.Canonical+"/"+den.Canonical, factors)
}

var registry = map[string]*Measure{}

func register(m *Measure) *Measure {
	registry[m.Name] = m
	return m
}

var (
	Mass = register(newMeasure("mass", "g", map[string]float64{
		"g": 1, "kg": 1000, "mg": 1e-3, "ug": 1e-6, "ng": 1e-9,
	}).withAliases(map[string]string{"µg": "ug", "mcg": "ug"}))

	Volume = register(newMeasure("volume", "L", map[string]float64{
		"L": 1, "dL": 0.1, "mL": 1e-3, "uL": 1e-6,
	}).withAliases(map[string]string{"l": "L", "ml": "mL", "µL": "uL"}))

	Time = register(newMeasure("time", "d", map[string]float64{
		"d": 1, "h": 1.0 / 24, "min": 1.0 / 1440, "wk": 7, "mo": 30.4375, "a": 365.25,
	}).withAliases(map[string]string{"day": "d", "week": "wk", "month": "mo", "year": "a"}))

	Temperature = register(func() *Measure {
		m := newMeasure("temperature", "Cel", map[string]float64{
			"Cel": 1, "[degF]": 5.0 / 9, "K": 1,
		})
		m.offsets["[degF]"] = -160.0 / 9 // 32 degF = 0 Cel
		m.offsets["K"] = -273.15
		return m.withAliases(map[string]string{"C": "Cel", "F": "[degF]"})
	}())

	Pressure = register(newMeasure("pressure", "mm[Hg]", map[string]float64{
		"mm[Hg]": 1, "kPa": 7.50062,
	}).withAliases(map[string]string{"mmHg": "mm[Hg]"}))

	Distance = register(newMeasure("distance", "cm", map[string]float64{
		"cm": 1, "m": 100, "mm": 0.1,
	}))

	Area = register(newMeasure("area", "m2", map[string]float64{
		"m2": 1, "cm2": 1e-4,
	}))

	Fraction = register(newMeasure("fraction", "1", map[string]float64{
		"1": 1, "%": 0.01,
	}).withAliases(map[string]string{"percent": "%"}))

	RadiationDose = register(newMeasure("radiation-dose", "Gy", map[string]float64{
		"Gy": 1, "cGy": 0.01, "mGy": 1e-3,
	}))

	Substance = register(newMeasure("substance", "mol", map[string]float64{
		"mol": 1, "mmol": 1e-3, "umol": 1e-6, "nmol": 1e-9,
	}).withAliases(map[string]string{"µmol": "umol"}))

	Unit = register(newMeasure("unit", "[iU]", map[string]float64{
		"[iU]": 1, "k[iU]": 1000,
	}).withAliases(map[string]string{"IU": "[iU]"}))

	MultipleOfMedian = register(newMeasure("multiple-of-median", "{MoM}", map[string]float64{
		"{MoM}": 1,
	}).withAliases(map[string]string{"MoM": "{MoM}"}))

	MassConcentration        = register(compose("mass-concentration", Mass, Volume))
	MassPerTime              = register(compose("mass-per-time", Mass, Time))
	VolumePerTime            = register(compose("volume-per-time", Volume, Time))
	MassPerArea              = register(compose("mass-per-area", Mass, Area))
	MassConcentrationPerTime = register(compose("mass-concentration-per-time", MassConcentration, Time))
	MassPerAreaPerTime       = register(compose("mass-per-area-per-time", MassPerArea, Time))
	ArbitraryConcentration   = register(compose("arbitrary-concentration", Unit, Volume))
	SubstanceConcentration   = register(compose("substance-concentration", Substance, Volume))
)

// Lookup returns the measure registered under name.
func Lookup(name string) (*Measure, error) {
	m, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMeasure, name)
	}
	return m, nil
}

// Classify returns the measure supporting the unit symbol. The
// registry is scanned in name order so shared symbols resolve
// deterministically.
func Classify(unit string) (*Measure, error) {
	for _, name := range Names() {
		m := registry[name]
		if _, ok := m.resolve(unit); ok {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
}

// Names lists all registered measure names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
