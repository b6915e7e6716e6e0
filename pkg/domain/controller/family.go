package controller

import "fmt"

// Family tells which of two controller document families is in use.
//
// Both families hold the same information, but in different indices and field names.
type Family int32

const (
	// Legacy is the family of "controllers".
	Legacy Family = iota
	// Model is the family of "model controllers".
	Model
)

type familyTraits struct {
	name          string
	index         string
	limitersField string
	numberField   string
	unitField     string
}

var families = map[Family]familyTraits{
	Legacy: {
		name:          "controller",
		index:         ".plugins-ml-controller",
		limitersField: "user_rate_limiter",
		numberField:   "limit",
		unitField:     "unit",
	},
	Model: {
		name:          "model controller",
		index:         ".plugins-ml-model-controller",
		limitersField: "user_rate_limiter_config",
		numberField:   "rate_limit_number",
		unitField:     "rate_limit_unit",
	},
}

func (f Family) traits() familyTraits {
	t, ok := families[f]
	if !ok {
		panic(fmt.Sprintf("unknown controller family: %d", f))
	}
	return t
}

func (f Family) IsValid() bool {
	_, ok := families[f]
	return ok
}

func (f Family) String() string {
	if !f.IsValid() {
		return fmt.Sprintf("Family(%d)", int32(f))
	}
	return f.traits().name
}

// Index is the name of the index storing controllers of the family.
func (f Family) Index() string {
	return f.traits().index
}

// LimitersField is the document field holding the map from user to rate limiter.
func (f Family) LimitersField() string {
	return f.traits().limitersField
}

func (f Family) NumberField() string {
	return f.traits().numberField
}

func (f Family) UnitField() string {
	return f.traits().unitField
}
