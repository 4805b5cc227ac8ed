package rules

// FieldKind drives operator applicability and value decoding.
type FieldKind int

const (
	KindText FieldKind = iota
	KindNumeric
	KindDate
	KindPeriod
	KindBool
	KindConcept
	KindTextArray
	KindEnum
)

// Field maps a rule field name to a column of the entity's table. For
// KindPeriod, Column holds the start column and EndColumn the end.
type Field struct {
	Column    string
	EndColumn string
	Kind      FieldKind
}

// Entity describes one queryable entity of the case graph. CaseRef is
// the column joining back to patient_case; empty for the case itself.
type Entity struct {
	Table   string
	CaseRef string
	Fields  map[string]Field
}

// Entities is the closed registry of entities a rule may reference.
var Entities = map[string]Entity{
	"PatientCase": {
		Table: "patient_case",
		Fields: map[string]Field{
			"pseudoidentifier":   {Column: "pseudoidentifier", Kind: KindText},
			"clinicalCenter":     {Column: "clinical_center", Kind: KindText},
			"clinicalIdentifier": {Column: "clinical_identifier", Kind: KindText},
			"dateOfBirth":        {Column: "date_of_birth", Kind: KindDate},
			"vitalStatus":        {Column: "vital_status", Kind: KindEnum},
			"dateOfDeath":        {Column: "date_of_death", Kind: KindDate},
			"causeOfDeath":       {Column: "cause_of_death", Kind: KindConcept},
			"endOfRecords":       {Column: "end_of_records", Kind: KindDate},
		},
	},
	"NeoplasticEntity": {
		Table:   "neoplastic_entity",
		CaseRef: "case_id",
		Fields: map[string]Field{
			"relationship":    {Column: "relationship", Kind: KindEnum},
			"topography.code": {Column: "topography_code", Kind: KindConcept},
			"morphology.code": {Column: "morphology_code", Kind: KindConcept},
			"assertionDate":   {Column: "assertion_date", Kind: KindDate},
		},
	},
	"Staging": {
		Table:   "staging",
		CaseRef: "case_id",
		Fields: map[string]Field{
			"stagingDate":   {Column: "staging_date", Kind: KindDate},
			"stagingDomain": {Column: "staging_domain", Kind: KindEnum},
		},
	},
	"GenomicVariant": {
		Table:   "genomic_variant",
		CaseRef: "case_id",
		Fields: map[string]Field{
			"variantDate":   {Column: "variant_date", Kind: KindDate},
			"genes.code":    {Column: "gene_codes", Kind: KindTextArray},
			"pathogenicity": {Column: "pathogenicity", Kind: KindEnum},
			"genePanel":     {Column: "gene_panel", Kind: KindText},
		},
	},
	"GenomicSignature": {
		Table:   "genomic_signature",
		CaseRef: "case_id",
		Fields: map[string]Field{
			"signatureDate": {Column: "signature_date", Kind: KindDate},
			"category":      {Column: "category", Kind: KindEnum},
		},
	},
	"TherapyLine": {
		Table:   "therapy_line",
		CaseRef: "case_id",
		Fields: map[string]Field{
			"intent":  {Column: "intent", Kind: KindEnum},
			"ordinal": {Column: "ordinal", Kind: KindNumeric},
			"period":  {Column: "period_start", EndColumn: "period_end", Kind: KindPeriod},
		},
	},
	"SystemicTherapy": {
		Table:   "systemic_therapy",
		CaseRef: "case_id",
		Fields: map[string]Field{
			"period":                 {Column: "period_start", EndColumn: "period_end", Kind: KindPeriod},
			"intent":                 {Column: "intent", Kind: KindEnum},
			"cycles":                 {Column: "cycles", Kind: KindNumeric},
			"role.code":              {Column: "role_code", Kind: KindConcept},
			"terminationReason.code": {Column: "termination_reason_code", Kind: KindConcept},
		},
	},
	"SystemicTherapyMedication": {
		Table:   "systemic_therapy_medication",
		CaseRef: "(SELECT st.case_id FROM systemic_therapy st WHERE st.id = t.therapy_id)",
		Fields: map[string]Field{
			"drug.code":       {Column: "drug_code", Kind: KindConcept},
			"therapyCategory": {Column: "therapy_category", Kind: KindEnum},
		},
	},
	"Surgery": {
		Table:   "surgery",
		CaseRef: "case_id",
		Fields: map[string]Field{
			"surgeryDate":    {Column: "surgery_date", Kind: KindDate},
			"procedure.code": {Column: "procedure_code", Kind: KindConcept},
			"intent":         {Column: "intent", Kind: KindEnum},
			"bodysite.code":  {Column: "bodysite_code", Kind: KindConcept},
			"outcome":        {Column: "outcome", Kind: KindEnum},
		},
	},
	"Radiotherapy": {
		Table:   "radiotherapy",
		CaseRef: "case_id",
		Fields: map[string]Field{
			"period": {Column: "period_start", EndColumn: "period_end", Kind: KindPeriod},
			"intent": {Column: "intent", Kind: KindEnum},
		},
	},
	"TreatmentResponse": {
		Table:   "treatment_response",
		CaseRef: "case_id",
		Fields: map[string]Field{
			"assessmentDate":   {Column: "assessment_date", Kind: KindDate},
			"recist.code":      {Column: "recist_code", Kind: KindConcept},
			"methodology.code": {Column: "methodology_code", Kind: KindConcept},
		},
	},
	"AdverseEvent": {
		Table:   "adverse_event",
		CaseRef: "case_id",
		Fields: map[string]Field{
			"eventDate":  {Column: "event_date", Kind: KindDate},
			"event.code": {Column: "event_code", Kind: KindConcept},
			"grade":      {Column: "grade", Kind: KindNumeric},
			"outcome":    {Column: "outcome", Kind: KindEnum},
		},
	},
	"PerformanceStatus": {
		Table:   "performance_status",
		CaseRef: "case_id",
		Fields: map[string]Field{
			"assessmentDate": {Column: "assessment_date", Kind: KindDate},
			"ecogScore":      {Column: "ecog_score", Kind: KindNumeric},
			"karnofskyScore": {Column: "karnofsky_score", Kind: KindNumeric},
		},
	},
	"Lifestyle": {
		Table:   "lifestyle",
		CaseRef: "case_id",
		Fields: map[string]Field{
			"recordDate":         {Column: "record_date", Kind: KindDate},
			"smokingStatus":      {Column: "smoking_status", Kind: KindEnum},
			"alcoholConsumption": {Column: "alcohol_consumption", Kind: KindEnum},
			"exposures.code":     {Column: "exposure_codes", Kind: KindTextArray},
		},
	},
	"FamilyHistory": {
		Table:   "family_history",
		CaseRef: "case_id",
		Fields: map[string]Field{
			"recordDate":     {Column: "record_date", Kind: KindDate},
			"relationship":   {Column: "relationship", Kind: KindEnum},
			"condition.code": {Column: "condition_code", Kind: KindConcept},
			"onsetAge":       {Column: "onset_age", Kind: KindNumeric},
		},
	},
	"Comorbidities": {
		Table:   "comorbidities",
		CaseRef: "case_id",
		Fields: map[string]Field{
			"recordDate":      {Column: "record_date", Kind: KindDate},
			"conditions.code": {Column: "condition_codes", Kind: KindTextArray},
			"charlsonIndex":   {Column: "charlson_index", Kind: KindNumeric},
		},
	},
	"Vitals": {
		Table:   "vitals",
		CaseRef: "case_id",
		Fields: map[string]Field{
			"recordDate": {Column: "record_date", Kind: KindDate},
			"height":     {Column: "height_cm", Kind: KindNumeric},
			"weight":     {Column: "weight_kg", Kind: KindNumeric},
		},
	},
	"RiskAssessment": {
		Table:   "risk_assessment",
		CaseRef: "case_id",
		Fields: map[string]Field{
			"assessmentDate":     {Column: "assessment_date", Kind: KindDate},
			"methodology.code":   {Column: "methodology_code", Kind: KindConcept},
			"riskClassification": {Column: "risk_classification", Kind: KindEnum},
			"score":              {Column: "score", Kind: KindNumeric},
		},
	},
	"TumorMarker": {
		Table:   "tumor_marker",
		CaseRef: "case_id",
		Fields: map[string]Field{
			"collectionDate": {Column: "collection_date", Kind: KindDate},
			"analyte.code":   {Column: "analyte_code", Kind: KindConcept},
			"value":          {Column: "value", Kind: KindNumeric},
		},
	},
	"TumorBoard": {
		Table:   "tumor_board",
		CaseRef: "case_id",
		Fields: map[string]Field{
			"boardDate": {Column: "board_date", Kind: KindDate},
			"category":  {Column: "category", Kind: KindEnum},
		},
	},
}
