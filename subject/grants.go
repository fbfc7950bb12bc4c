package subject

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// grantsFile is the on-disk shape of a roles file:
//
//	roles:
//	  accountant:
//	    permissions:
//	      - tests.view_project
//	      - tests.view_expense
//	  auditor:
//	    permissions:
//	      - tests.view_project
//	    objects:
//	      tests.view_expense: [1, 7]
type grantsFile struct {
	Roles map[string]roleGrants `yaml:"roles"`
}

type roleGrants struct {
	Permissions []string         `yaml:"permissions"`
	Objects     map[string][]any `yaml:"objects"`
}

// ParseGrants reads a YAML roles document and returns one Static subject
// per role. Object grant identity keys keep the types the YAML decoder
// gives them (int for integers, string otherwise), so they must match the
// types the application's EntityID methods return.
func ParseGrants(data []byte) (map[string]*Static, error) {
	var file grantsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("subject: parsing grants: %w", err)
	}
	roles := make(map[string]*Static, len(file.Roles))
	for name, grants := range file.Roles {
		s := New(grants.Permissions...)
		for permission, ids := range grants.Objects {
			s.GrantObject(permission, ids...)
		}
		roles[name] = s
	}
	return roles, nil
}

// LoadGrants reads a YAML roles file from disk. See ParseGrants for the
// expected shape.
func LoadGrants(path string) (map[string]*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("subject: reading grants file %q: %w", path, err)
	}
	return ParseGrants(data)
}
