package profile

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// LoadSeed reads profiles from a YAML file of the form:
//
//	profiles:
//	  - userId: u1
//	    name: Ada
//	    age: 36
//
// An empty path yields no profiles.
func LoadSeed(path string) ([]Profile, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile seed: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes YAML seed data, rejecting entries without a user id or
// with duplicate ids.
func ParseSeed(data []byte) ([]Profile, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse profile seed: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Profiles))
	out := make([]Profile, 0, len(file.Profiles))
	for i, p := range file.Profiles {
		p.UserID = strings.TrimSpace(p.UserID)
		if p.UserID == "" {
			return nil, fmt.Errorf("profile seed entry %d has no userId", i)
		}
		if _, dup := seen[p.UserID]; dup {
			return nil, fmt.Errorf("profile seed has duplicate userId %q", p.UserID)
		}
		seen[p.UserID] = struct{}{}
		if p.Conditions == nil {
			p.Conditions = []ConditionEntry{}
		}
		out = append(out, p)
	}
	return out, nil
}
