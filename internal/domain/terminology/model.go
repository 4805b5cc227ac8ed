package terminology

import "errors"

// ErrNotFound is returned when no concept matches a (system, code) pair.
var ErrNotFound = errors.New("concept not found")

// Concept is one coded concept of an external terminology, identified
// by its (system, code) pair. Hierarchy is a forest per system through
// the parent reference.
type Concept struct {
	ID         int64          `json:"-"`
	System     string         `json:"system"`
	Code       string         `json:"code"`
	Display    string         `json:"display,omitempty"`
	Definition string         `json:"definition,omitempty"`
	Version    string         `json:"version,omitempty"`
	ParentID   *int64         `json:"-"`
	ParentCode string         `json:"parent,omitempty"`
	Synonyms   []string       `json:"synonyms,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Ref is the lightweight coded-concept reference embedded in clinical
// entities.
type Ref struct {
	Code    string `json:"code"`
	System  string `json:"system"`
	Display string `json:"display,omitempty"`
}

// System URI constants for well-known terminology systems.
const (
	SystemSNOMED          = "http://snomed.info/sct"
	SystemLOINC           = "http://loinc.org"
	SystemICD10           = "http://hl7.org/fhir/sid/icd-10"
	SystemICDO3Topography = "http://terminology.hl7.org/CodeSystem/icd-o-3-topography"
	SystemICDO3Morphology = "http://terminology.hl7.org/CodeSystem/icd-o-3-morphology"
	SystemATC             = "http://www.whocc.no/atc"
	SystemHGNC            = "http://www.genenames.org"
	SystemHGVS            = "http://varnomen.hgvs.org"
	SystemRECIST          = "https://ncit.nci.nih.gov/recist"
	SystemCTCAE           = "http://terminology.hl7.org/CodeSystem/ctcae"
	SystemUCUM            = "http://unitsofmeasure.org"
)

// Terminologies maps exposed terminology names to their system URIs.
var Terminologies = map[string]string{
	"snomed":             SystemSNOMED,
	"loinc":              SystemLOINC,
	"icd-10":             SystemICD10,
	"icd-o-3-topography": SystemICDO3Topography,
	"icd-o-3-morphology": SystemICDO3Morphology,
	"atc":                SystemATC,
	"hgnc":               SystemHGNC,
	"hgvs":               SystemHGVS,
	"recist":             SystemRECIST,
	"ctcae":              SystemCTCAE,
	"ucum":               SystemUCUM,
}

// SystemForName resolves a terminology name to its system URI.
func SystemForName(name string) (string, bool) {
	system, ok := Terminologies[name]
	return system, ok
}
