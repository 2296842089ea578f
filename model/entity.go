package model

// EntityType is the kind of sensitive span a recognizer detects.
type EntityType string

const (
	EntityEmail        EntityType = "EMAIL_ADDRESS"
	EntityPhone        EntityType = "PHONE_NUMBER"
	EntityPerson       EntityType = "PERSON"
	EntitySSN          EntityType = "US_SSN"
	EntityLocation     EntityType = "LOCATION"
	EntityOrganization EntityType = "ORGANIZATION"
	EntityCreditCard   EntityType = "CREDIT_CARD"
	EntityIPAddress    EntityType = "IP_ADDRESS"
)

// DefaultEntities is the allow-list used when none is configured.
var DefaultEntities = []EntityType{
	EntityEmail,
	EntityPhone,
	EntityPerson,
	EntitySSN,
}

// Placeholder is the token a detected span of this type is replaced with.
func (t EntityType) Placeholder() string {
	return "<" + string(t) + ">"
}

// Detection is a span of the analyzed text recognized as an entity.
// Start and End are byte offsets, End exclusive.
type Detection struct {
	Type  EntityType `json:"entity_type"`
	Start int        `json:"start"`
	End   int        `json:"end"`
	Score float64    `json:"score"`
}

// Len returns the length of the span in bytes.
func (d Detection) Len() int {
	return d.End - d.Start
}

// Overlaps reports whether two detections share at least one byte.
func (d Detection) Overlaps(o Detection) bool {
	return d.Start < o.End && o.Start < d.End
}
