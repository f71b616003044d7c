package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/civil-registry-api/internal/models"
)

// FieldError is one blocking validation failure tied to a field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// DateOrder requires Earlier <= Later when both parse.
type DateOrder struct {
	Earlier string
	Later   string
}

// DerivedField is recomputed whenever one of its sources changes.
type DerivedField struct {
	Field   string
	Sources []string
	Compute func(models.Document) (interface{}, bool)
}

// Jurisdiction names the region/zone/woreda/kebele fields of a record type.
type Jurisdiction struct {
	Region string
	Zone   string
	Woreda string
	Kebele string
}

// LabeledField pairs a printable label with a document field.
type LabeledField struct {
	Label string
	Field string
}

// RecordDescriptor declares everything that differs between record types.
type RecordDescriptor struct {
	Type         models.RecordType
	Tag          string
	Title        string
	PathPrefix   string
	Jurisdiction Jurisdiction
	// ScopeByWoreda narrows vms_officer visibility to the officer's woreda as well as region.
	ScopeByWoreda bool
	PrimaryDate   string
	Required      []string
	// Optional fields lower the quality score when missing.
	Optional []string
	// Fields is every client writable field and doubles as the update allowlist.
	Fields        []string
	DateFields    []string
	PastDates     []string
	DateOrder     []DateOrder
	Enums         map[string]string
	IDFields      []string
	PhoneFields   []string
	NumericFields []string
	SearchFields  []string
	ExactFilters  map[string]string
	DuplicateKey  []string
	Defaults      map[string]interface{}
	Derived       []DerivedField
	UploadField   string
	SubjectFields []string
	Certificate   []LabeledField
	Checks        func(doc models.Document) ([]FieldError, []string)
}

// Subject renders the human name of the record subject.
func (d *RecordDescriptor) Subject(doc models.Document) string {
	parts := make([]string, 0, len(d.SubjectFields))
	for _, field := range d.SubjectFields {
		if v := strings.TrimSpace(doc.String(field)); v != "" {
			parts = append(parts, v)
		}
	}
	sep := " "
	if d.Type == models.RecordMarriage || d.Type == models.RecordDivorce {
		sep = " & "
	}
	return strings.Join(parts, sep)
}

// Allows reports whether field is in the update allowlist.
func (d *RecordDescriptor) Allows(field string) bool {
	for _, f := range d.Fields {
		if f == field {
			return true
		}
	}
	return false
}

func (d *RecordDescriptor) isDate(field string) bool {
	for _, f := range d.DateFields {
		if f == field {
			return true
		}
	}
	return false
}

func (d *RecordDescriptor) isNumeric(field string) bool {
	for _, f := range d.NumericFields {
		if f == field {
			return true
		}
	}
	return false
}

// Descriptors indexes the built-in record types.
type Descriptors map[models.RecordType]*RecordDescriptor

// Get returns the descriptor for t.
func (d Descriptors) Get(t models.RecordType) (*RecordDescriptor, error) {
	desc, ok := d[t]
	if !ok {
		return nil, fmt.Errorf("unknown record type %q", t)
	}
	return desc, nil
}

// DefaultDescriptors returns the birth, death, marriage and divorce descriptors.
func DefaultDescriptors() Descriptors {
	return Descriptors{
		models.RecordBirth:    birthDescriptor(),
		models.RecordDeath:    deathDescriptor(),
		models.RecordMarriage: marriageDescriptor(),
		models.RecordDivorce:  divorceDescriptor(),
	}
}

const genderEnum = "oneof=male female"

func birthDescriptor() *RecordDescriptor {
	parent := func(prefix string) []string {
		return []string{
			prefix + "_full_name", prefix + "_nationality", prefix + "_ethnicity", prefix + "_religion",
			prefix + "_date_of_birth", prefix + "_occupation", prefix + "_id_number", prefix + "_phone",
		}
	}
	fields := []string{
		"child_first_name", "child_father_name", "child_grandfather_name", "child_gender",
		"date_of_birth", "time_of_birth", "weight_kg", "place_of_birth_type", "place_of_birth_name",
		"birth_region", "birth_zone", "birth_woreda", "birth_kebele", "birth_city",
	}
	fields = append(fields, parent("father")...)
	fields = append(fields, parent("mother")...)
	fields = append(fields, "informant_name", "informant_relationship", "informant_phone", "child_photo")

	return &RecordDescriptor{
		Type:         models.RecordBirth,
		Tag:          "BR",
		Title:        "Birth Certificate",
		PathPrefix:   "births",
		Jurisdiction: Jurisdiction{Region: "birth_region", Zone: "birth_zone", Woreda: "birth_woreda", Kebele: "birth_kebele"},
		PrimaryDate:  "date_of_birth",
		Required:     []string{"child_first_name", "child_father_name", "child_gender", "date_of_birth"},
		Optional: []string{
			"child_grandfather_name", "place_of_birth_name", "birth_region", "birth_woreda",
			"father_full_name", "mother_full_name", "father_id_number", "mother_id_number",
		},
		Fields:        fields,
		DateFields:    []string{"date_of_birth", "father_date_of_birth", "mother_date_of_birth"},
		PastDates:     []string{"date_of_birth", "father_date_of_birth", "mother_date_of_birth"},
		DateOrder:     []DateOrder{{"father_date_of_birth", "date_of_birth"}, {"mother_date_of_birth", "date_of_birth"}},
		Enums:         map[string]string{"child_gender": genderEnum, "place_of_birth_type": "oneof=hospital health_center home other"},
		IDFields:      []string{"father_id_number", "mother_id_number"},
		PhoneFields:   []string{"father_phone", "mother_phone", "informant_phone"},
		NumericFields: []string{"weight_kg"},
		SearchFields:  []string{models.FieldCertificateNumber, "child_first_name", "child_father_name", "child_grandfather_name", "father_full_name", "mother_full_name"},
		ExactFilters:  map[string]string{"gender": "child_gender", "region": "birth_region", "woreda": "birth_woreda", "status": models.FieldStatus},
		DuplicateKey:  []string{"child_first_name", "child_father_name", "date_of_birth"},
		Defaults: map[string]interface{}{
			"father_nationality":  "Ethiopian",
			"mother_nationality":  "Ethiopian",
			"place_of_birth_type": "hospital",
		},
		Derived: []DerivedField{
			{Field: "ethiopian_date_of_birth", Sources: []string{"date_of_birth"}, Compute: ethiopianDerivation("date_of_birth")},
		},
		UploadField:   "child_photo",
		SubjectFields: []string{"child_first_name", "child_father_name"},
		Certificate: []LabeledField{
			{"Child name", "child_first_name"}, {"Father's name", "child_father_name"}, {"Grandfather's name", "child_grandfather_name"},
			{"Gender", "child_gender"}, {"Date of birth", "date_of_birth"}, {"Ethiopian date", "ethiopian_date_of_birth"},
			{"Place of birth", "place_of_birth_name"}, {"Region", "birth_region"}, {"Woreda", "birth_woreda"},
			{"Mother", "mother_full_name"}, {"Father", "father_full_name"},
		},
		Checks: birthChecks,
	}
}

func birthChecks(doc models.Document) ([]FieldError, []string) {
	var warnings []string
	if weight, ok := models.ToFloat(doc["weight_kg"]); ok && (weight < 0.5 || weight > 7) {
		warnings = append(warnings, fmt.Sprintf("weight_kg %.2f is outside the expected range of 0.5 to 7 kg", weight))
	}
	birth, ok := documentDate(doc, "date_of_birth")
	if !ok {
		return nil, warnings
	}
	for _, parent := range []string{"father", "mother"} {
		dob, ok := documentDate(doc, parent+"_date_of_birth")
		if !ok {
			continue
		}
		if age := AgeInYears(dob, birth); age < 12 {
			warnings = append(warnings, fmt.Sprintf("%s was %d years old at the child's birth", parent, age))
		}
	}
	return nil, warnings
}

func deathDescriptor() *RecordDescriptor {
	return &RecordDescriptor{
		Type:          models.RecordDeath,
		Tag:           "DR",
		Title:         "Death Certificate",
		PathPrefix:    "deaths",
		Jurisdiction:  Jurisdiction{Region: "death_region", Zone: "death_zone", Woreda: "death_woreda", Kebele: "death_kebele"},
		ScopeByWoreda: true,
		PrimaryDate:   "date_of_death",
		Required:      []string{"deceased_first_name", "deceased_father_name", "deceased_gender", "date_of_death"},
		Optional: []string{
			"deceased_grandfather_name", "date_of_birth", "cause_of_death", "place_of_death_name",
			"death_region", "death_woreda", "informant_name", "certifying_doctor",
		},
		Fields: []string{
			"deceased_first_name", "deceased_father_name", "deceased_grandfather_name", "deceased_gender",
			"date_of_birth", "date_of_death", "time_of_death", "age_type",
			"place_of_death_type", "place_of_death_name",
			"death_region", "death_zone", "death_woreda", "death_kebele", "death_city", "death_specific_location",
			"cause_of_death", "cause_of_death_type", "underlying_causes",
			"nationality", "ethnicity", "religion", "marital_status", "occupation", "education",
			"usual_region", "usual_zone", "usual_woreda", "usual_kebele", "usual_city", "usual_house_number",
			"certifying_doctor", "doctor_qualification", "death_cause_verified", "medical_certificate_number", "health_facility_name",
			"informant_name", "informant_relationship", "informant_id_number", "informant_phone", "informant_address",
			"burial_date", "burial_place", "burial_region", "burial_zone", "burial_woreda", "undertaker_name",
			"deceased_photo",
		},
		DateFields: []string{"date_of_birth", "date_of_death", "burial_date"},
		PastDates:  []string{"date_of_birth", "date_of_death"},
		DateOrder:  []DateOrder{{"date_of_birth", "date_of_death"}, {"date_of_death", "burial_date"}},
		Enums: map[string]string{
			"deceased_gender": genderEnum,
			"age_type":        "oneof=years months days",
			"marital_status":  "oneof=single married divorced widowed",
		},
		IDFields:     []string{"informant_id_number"},
		PhoneFields:  []string{"informant_phone"},
		SearchFields: []string{models.FieldCertificateNumber, "deceased_first_name", "deceased_father_name", "deceased_grandfather_name", "informant_name"},
		ExactFilters: map[string]string{
			"gender": "deceased_gender", "region": "death_region", "woreda": "death_woreda",
			"status": models.FieldStatus, "cause_type": "cause_of_death_type",
		},
		DuplicateKey: []string{"deceased_first_name", "deceased_father_name", "date_of_death"},
		Defaults: map[string]interface{}{
			"nationality":         "Ethiopian",
			"place_of_death_type": "hospital",
			"cause_of_death_type": "natural",
			"age_type":            "years",
		},
		Derived: []DerivedField{
			{Field: "age_at_death", Sources: []string{"date_of_birth", "date_of_death"}, Compute: ageDerivation("date_of_birth", "date_of_death")},
			{Field: "ethiopian_date_of_death", Sources: []string{"date_of_death"}, Compute: ethiopianDerivation("date_of_death")},
		},
		UploadField:   "deceased_photo",
		SubjectFields: []string{"deceased_first_name", "deceased_father_name"},
		Certificate: []LabeledField{
			{"Name of deceased", "deceased_first_name"}, {"Father's name", "deceased_father_name"}, {"Grandfather's name", "deceased_grandfather_name"},
			{"Gender", "deceased_gender"}, {"Date of death", "date_of_death"}, {"Ethiopian date", "ethiopian_date_of_death"},
			{"Age at death", "age_at_death"}, {"Place of death", "place_of_death_name"}, {"Cause of death", "cause_of_death"},
			{"Region", "death_region"}, {"Woreda", "death_woreda"},
		},
		Checks: deathChecks,
	}
}

func deathChecks(doc models.Document) ([]FieldError, []string) {
	var warnings []string
	if age, ok := ageDerivation("date_of_birth", "date_of_death")(doc); ok && age.(int) > 120 {
		warnings = append(warnings, fmt.Sprintf("age at death of %d years is implausible", age.(int)))
	}
	if verified, _ := doc["death_cause_verified"].(bool); verified && strings.TrimSpace(doc.String("certifying_doctor")) == "" {
		warnings = append(warnings, "death cause is marked verified without a certifying doctor")
	}
	return nil, warnings
}

func spouseFields(prefix string, suffixes ...string) []string {
	out := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		out = append(out, prefix+"_"+s)
	}
	return out
}

func marriageDescriptor() *RecordDescriptor {
	spouse := []string{
		"full_name", "father_name", "grandfather_name", "nationality", "ethnicity", "religion",
		"date_of_birth", "previous_marital_status", "occupation", "education", "id_number", "phone",
		"region", "zone", "woreda", "kebele", "city", "house_number", "photo",
	}
	fields := []string{
		"marriage_date", "marriage_place", "marriage_type",
		"marriage_region", "marriage_zone", "marriage_woreda", "marriage_kebele", "marriage_city",
	}
	fields = append(fields, spouseFields("spouse1", spouse...)...)
	fields = append(fields, spouseFields("spouse2", spouse...)...)
	fields = append(fields, spouseFields("witness1", "name", "id_number", "address")...)
	fields = append(fields, spouseFields("witness2", "name", "id_number", "address")...)
	fields = append(fields, "officiant_name", "officiant_title", "officiant_registration_number", "marriage_photo")

	maritalEnum := "oneof=single divorced widowed"
	return &RecordDescriptor{
		Type:          models.RecordMarriage,
		Tag:           "MR",
		Title:         "Marriage Certificate",
		PathPrefix:    "marriages",
		Jurisdiction:  Jurisdiction{Region: "marriage_region", Zone: "marriage_zone", Woreda: "marriage_woreda", Kebele: "marriage_kebele"},
		ScopeByWoreda: true,
		PrimaryDate:   "marriage_date",
		Required:      []string{"marriage_date", "spouse1_full_name", "spouse1_id_number", "spouse2_full_name", "spouse2_id_number"},
		Optional: []string{
			"spouse1_date_of_birth", "spouse2_date_of_birth", "witness1_name", "witness2_name",
			"officiant_name", "marriage_place", "marriage_region", "marriage_woreda",
		},
		Fields:     fields,
		DateFields: []string{"marriage_date", "spouse1_date_of_birth", "spouse2_date_of_birth"},
		PastDates:  []string{"marriage_date", "spouse1_date_of_birth", "spouse2_date_of_birth"},
		DateOrder:  []DateOrder{{"spouse1_date_of_birth", "marriage_date"}, {"spouse2_date_of_birth", "marriage_date"}},
		Enums: map[string]string{
			"marriage_type":                   "oneof=civil religious customary",
			"spouse1_previous_marital_status": maritalEnum,
			"spouse2_previous_marital_status": maritalEnum,
		},
		IDFields:     []string{"spouse1_id_number", "spouse2_id_number", "witness1_id_number", "witness2_id_number"},
		PhoneFields:  []string{"spouse1_phone", "spouse2_phone"},
		SearchFields: []string{models.FieldCertificateNumber, "spouse1_full_name", "spouse2_full_name", "spouse1_father_name", "spouse2_father_name"},
		ExactFilters: map[string]string{
			"region": "marriage_region", "woreda": "marriage_woreda",
			"status": models.FieldStatus, "marriage_type": "marriage_type",
		},
		DuplicateKey: []string{"spouse1_id_number", "spouse2_id_number", "marriage_date"},
		Defaults: map[string]interface{}{
			"marriage_type":                   "civil",
			"spouse1_nationality":             "Ethiopian",
			"spouse2_nationality":             "Ethiopian",
			"spouse1_previous_marital_status": "single",
			"spouse2_previous_marital_status": "single",
		},
		Derived: []DerivedField{
			{Field: "spouse1_age_at_marriage", Sources: []string{"spouse1_date_of_birth", "marriage_date"}, Compute: ageDerivation("spouse1_date_of_birth", "marriage_date")},
			{Field: "spouse2_age_at_marriage", Sources: []string{"spouse2_date_of_birth", "marriage_date"}, Compute: ageDerivation("spouse2_date_of_birth", "marriage_date")},
			{Field: "ethiopian_marriage_date", Sources: []string{"marriage_date"}, Compute: ethiopianDerivation("marriage_date")},
		},
		UploadField:   "marriage_photo",
		SubjectFields: []string{"spouse1_full_name", "spouse2_full_name"},
		Certificate: []LabeledField{
			{"First spouse", "spouse1_full_name"}, {"First spouse ID", "spouse1_id_number"},
			{"Second spouse", "spouse2_full_name"}, {"Second spouse ID", "spouse2_id_number"},
			{"Date of marriage", "marriage_date"}, {"Ethiopian date", "ethiopian_marriage_date"},
			{"Type of marriage", "marriage_type"}, {"Place of marriage", "marriage_place"},
			{"Officiant", "officiant_name"}, {"Region", "marriage_region"}, {"Woreda", "marriage_woreda"},
		},
		Checks: marriageChecks,
	}
}

func marriageChecks(doc models.Document) ([]FieldError, []string) {
	errs := distinctSpouses(doc)
	var warnings []string
	for _, spouse := range []string{"spouse1", "spouse2"} {
		age, ok := ageDerivation(spouse+"_date_of_birth", "marriage_date")(doc)
		if ok && age.(int) < 18 {
			warnings = append(warnings, fmt.Sprintf("%s was %d years old at marriage, below the legal age of 18", spouse, age.(int)))
		}
	}
	return errs, warnings
}

func divorceDescriptor() *RecordDescriptor {
	fields := []string{
		"divorce_date", "divorce_case_number", "divorce_type", "court_name", "court_case_number", "judge_name",
		"decree_absolute_date", "divorce_reasons",
		"divorce_region", "divorce_zone", "divorce_woreda", "divorce_kebele",
	}
	spouse := []string{"full_name", "father_name", "id_number", "address", "phone", "grounds_for_divorce"}
	fields = append(fields, spouseFields("spouse1", spouse...)...)
	fields = append(fields, spouseFields("spouse2", spouse...)...)
	fields = append(fields,
		"original_marriage_date", "original_marriage_certificate_number", "original_marriage_place",
		"number_of_children", "child_custody_details", "child_support_arrangements", "property_settlement",
		"divorce_document",
	)

	return &RecordDescriptor{
		Type:          models.RecordDivorce,
		Tag:           "DV",
		Title:         "Divorce Certificate",
		PathPrefix:    "divorces",
		Jurisdiction:  Jurisdiction{Region: "divorce_region", Zone: "divorce_zone", Woreda: "divorce_woreda", Kebele: "divorce_kebele"},
		ScopeByWoreda: true,
		PrimaryDate:   "divorce_date",
		Required:      []string{"divorce_date", "spouse1_full_name", "spouse1_id_number", "spouse2_full_name", "spouse2_id_number"},
		Optional: []string{
			"original_marriage_date", "original_marriage_certificate_number", "court_name", "court_case_number",
			"divorce_region", "divorce_woreda", "divorce_reasons",
		},
		Fields:        fields,
		DateFields:    []string{"divorce_date", "original_marriage_date", "decree_absolute_date"},
		PastDates:     []string{"divorce_date", "original_marriage_date"},
		DateOrder:     []DateOrder{{"original_marriage_date", "divorce_date"}, {"divorce_date", "decree_absolute_date"}},
		Enums:         map[string]string{"divorce_type": "oneof=court mutual customary religious"},
		IDFields:      []string{"spouse1_id_number", "spouse2_id_number"},
		PhoneFields:   []string{"spouse1_phone", "spouse2_phone"},
		NumericFields: []string{"number_of_children"},
		SearchFields:  []string{models.FieldCertificateNumber, "spouse1_full_name", "spouse2_full_name", "court_case_number", "divorce_case_number"},
		ExactFilters: map[string]string{
			"region": "divorce_region", "woreda": "divorce_woreda",
			"status": models.FieldStatus, "divorce_type": "divorce_type",
		},
		DuplicateKey: []string{"spouse1_id_number", "spouse2_id_number", "divorce_date"},
		Defaults: map[string]interface{}{
			"divorce_type":       "court",
			"number_of_children": 0,
		},
		Derived: []DerivedField{
			{Field: "marriage_duration_years", Sources: []string{"original_marriage_date", "divorce_date"}, Compute: ageDerivation("original_marriage_date", "divorce_date")},
			{Field: "ethiopian_divorce_date", Sources: []string{"divorce_date"}, Compute: ethiopianDerivation("divorce_date")},
		},
		UploadField:   "divorce_document",
		SubjectFields: []string{"spouse1_full_name", "spouse2_full_name"},
		Certificate: []LabeledField{
			{"First spouse", "spouse1_full_name"}, {"Second spouse", "spouse2_full_name"},
			{"Date of divorce", "divorce_date"}, {"Ethiopian date", "ethiopian_divorce_date"},
			{"Original marriage date", "original_marriage_date"}, {"Marriage duration (years)", "marriage_duration_years"},
			{"Court", "court_name"}, {"Court case number", "court_case_number"},
			{"Region", "divorce_region"}, {"Woreda", "divorce_woreda"},
		},
		Checks: divorceChecks,
	}
}

func divorceChecks(doc models.Document) ([]FieldError, []string) {
	errs := distinctSpouses(doc)
	if n, ok := models.ToFloat(doc["number_of_children"]); ok && n < 0 {
		errs = append(errs, FieldError{Field: "number_of_children", Message: "number_of_children cannot be negative"})
	}
	return errs, nil
}

func distinctSpouses(doc models.Document) []FieldError {
	id1 := strings.TrimSpace(doc.String("spouse1_id_number"))
	id2 := strings.TrimSpace(doc.String("spouse2_id_number"))
	if id1 != "" && strings.EqualFold(id1, id2) {
		return []FieldError{{Field: "spouse2_id_number", Message: "spouse1_id_number and spouse2_id_number must differ"}}
	}
	return nil
}
