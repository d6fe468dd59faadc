package dataset

import "strings"

// Field is a canonical logical field of a voter record. Input datasets may
// name these columns in many ways; resolution happens once per table through
// the ordered alias lists below.
type Field string

const (
	FieldVoterID      Field = "voter_id"
	FieldFirstName    Field = "first_name"
	FieldLastName     Field = "last_name"
	FieldName         Field = "name"
	FieldDOB          Field = "dob"
	FieldAge          Field = "age"
	FieldGender       Field = "gender"
	FieldAddress      Field = "address"
	FieldPincode      Field = "pincode"
	FieldRegistration Field = "registration_year"
	FieldLastVoted    Field = "last_voted_year"
	FieldMaskedID     Field = "masked_id"
)

// fieldAliases maps each canonical field to its accepted column names in
// priority order. Matching is case-insensitive.
var fieldAliases = map[Field][]string{
	FieldVoterID:      {"voter_id", "voterid", "voter id", "id"},
	FieldFirstName:    {"first_name", "firstname", "first name", "fname"},
	FieldLastName:     {"last_name", "lastname", "last name", "lname"},
	FieldName:         {"name", "full_name", "fullname"},
	FieldDOB:          {"dob", "date_of_birth", "birth_date", "dateofbirth"},
	FieldAge:          {"age"},
	FieldGender:       {"gender", "sex"},
	FieldAddress:      {"address", "residence", "addr"},
	FieldPincode:      {"pincode", "zip_code", "zip", "zipcode"},
	FieldRegistration: {"registration_year", "reg_year", "year_registered"},
	FieldLastVoted:    {"last_voted_year", "last_voted", "lastvotedyear"},
	FieldMaskedID:     {"masked_aadhaar", "masked_id", "id_number"},
}

// FieldMap is the resolved mapping from canonical fields to the actual column
// names of one dataset. Downstream components consume only canonical fields.
type FieldMap map[Field]string

// ResolveFields matches the table's columns against the alias lists. Fields
// with no matching column are simply absent from the map; strict validation
// of required fields is the security guard's job, not the preprocessor's.
func ResolveFields(columns []string) FieldMap {
	lower := make(map[string]string, len(columns))
	for _, col := range columns {
		key := strings.ToLower(col)
		if _, ok := lower[key]; !ok {
			lower[key] = col
		}
	}

	fm := make(FieldMap)
	for field, aliases := range fieldAliases {
		for _, alias := range aliases {
			if col, ok := lower[alias]; ok {
				fm[field] = col
				break
			}
		}
	}
	return fm
}

// Has reports whether the dataset carried a column for the canonical field.
func (fm FieldMap) Has(f Field) bool {
	_, ok := fm[f]
	return ok
}

// IsMapped reports whether the given input column resolved to a canonical
// field.
func (fm FieldMap) IsMapped(column string) bool {
	for _, col := range fm {
		if col == column {
			return true
		}
	}
	return false
}

// Get returns the raw value of a canonical field for a row, or "" when the
// field was not resolved.
func (fm FieldMap) Get(row Row, f Field) string {
	col, ok := fm[f]
	if !ok {
		return ""
	}
	return row[col]
}
