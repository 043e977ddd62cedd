package entity

import "time"

// User is a member of the close team who can prepare or review accounts
type User struct {
	ID         string     `json:"id" yaml:"id"`
	Name       string     `json:"name" yaml:"name"`
	Email      string     `json:"email,omitempty" yaml:"email"`
	Department Department `json:"department" yaml:"department"`
	Level      Level      `json:"level" yaml:"level"`
	Active     bool       `json:"active" yaml:"active"`
	CreatedAt  time.Time  `json:"created_at" yaml:"-"`
	UpdatedAt  time.Time  `json:"updated_at" yaml:"-"`
}
