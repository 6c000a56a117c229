package template

// System variables are resolved automatically per recipient at send time and
// are never operator-editable. The registry is fixed at build time.
const (
	VarCompanyName        = "company_name"
	VarSubscriberEmail    = "subscriber_email"
	VarSubscriberUsername = "subscriber_username"
)

var systemVariables = map[string]struct{}{
	VarCompanyName:        {},
	VarSubscriberEmail:    {},
	VarSubscriberUsername: {},
}

// Classification partitions a variable set into system-reserved and
// operator-supplied custom names. The partitions are disjoint and together
// cover the input.
type Classification struct {
	System []string `json:"system"`
	Custom []string `json:"custom"`
}

// IsSystemVariable reports whether name is in the reserved registry.
// Names are matched exactly; identifiers are already case-constrained.
func IsSystemVariable(name string) bool {
	_, ok := systemVariables[name]
	return ok
}

// Classify partitions variables into system and custom subsets, preserving
// input order within each partition.
func Classify(variables []string) Classification {
	c := Classification{
		System: []string{},
		Custom: []string{},
	}
	for _, v := range variables {
		if IsSystemVariable(v) {
			c.System = append(c.System, v)
		} else {
			c.Custom = append(c.Custom, v)
		}
	}
	return c
}
