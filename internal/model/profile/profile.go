package profile

import (
	"strconv"
	"strings"
	"time"
)

// ConditionEntry is a timestamped symptom or health condition mentioned by the user.
type ConditionEntry struct {
	Condition string    `json:"condition" yaml:"condition"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Profile captures who the user is plus the conditions mined from their messages.
type Profile struct {
	UserID     string           `json:"userId" yaml:"userId"`
	Name       string           `json:"name" yaml:"name"`
	Age        int              `json:"age" yaml:"age"`
	Conditions []ConditionEntry `json:"conditions" yaml:"conditions"`
}

// ConditionNames returns the condition phrases in insertion order.
func (p Profile) ConditionNames() []string {
	names := make([]string, 0, len(p.Conditions))
	for _, c := range p.Conditions {
		names = append(names, c.Condition)
	}
	return names
}

// Summary renders the profile block used in system instructions. A nil profile
// renders with "Unknown" placeholders.
func Summary(p *Profile) string {
	name, age, conditions := "Unknown", "Unknown", "None"
	if p != nil {
		if strings.TrimSpace(p.Name) != "" {
			name = p.Name
		}
		if p.Age > 0 {
			age = strconv.Itoa(p.Age)
		}
		if names := p.ConditionNames(); len(names) > 0 {
			conditions = strings.Join(names, ", ")
		}
	}

	var b strings.Builder
	b.WriteString("User Profile:\n")
	b.WriteString("- Name: " + name + "\n")
	b.WriteString("- Age: " + age + "\n")
	b.WriteString("- Known Conditions: " + conditions + "\n")
	return b.String()
}

func clone(p Profile) Profile {
	p.Conditions = append([]ConditionEntry(nil), p.Conditions...)
	return p
}
