package assignment

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/closeflow/internal/domain/entity"
	"github.com/garyjia/closeflow/pkg/utils"
)

//go:embed roster.schema.json
var rosterSchemaJSON []byte

var rosterSchema = utils.MustCompileSchema("roster.schema.json", rosterSchemaJSON)

type rosterUser struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Email      string `yaml:"email"`
	Department string `yaml:"department"`
	Level      string `yaml:"level"`
	Active     *bool  `yaml:"active"`
}

type rosterFile struct {
	Users []rosterUser `yaml:"users"`
}

// LoadRoster reads a YAML team roster
func LoadRoster(path string) ([]*entity.User, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}
	return ParseRoster(data)
}

// ParseRoster decodes roster content. Users are active unless marked otherwise
// and ids must be unique.
func ParseRoster(data []byte) ([]*entity.User, error) {
	if err := rosterSchema.ValidateYAML(data); err != nil {
		return nil, err
	}

	var f rosterFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse roster file: %w", err)
	}

	seen := make(map[string]bool, len(f.Users))
	users := make([]*entity.User, 0, len(f.Users))
	for _, u := range f.Users {
		if seen[u.ID] {
			return nil, fmt.Errorf("duplicate user id %q in roster", u.ID)
		}
		seen[u.ID] = true

		active := true
		if u.Active != nil {
			active = *u.Active
		}
		users = append(users, &entity.User{
			ID:         u.ID,
			Name:       u.Name,
			Email:      u.Email,
			Department: entity.ParseDepartment(u.Department),
			Level:      entity.ParseLevel(u.Level),
			Active:     active,
		})
	}
	return users, nil
}
