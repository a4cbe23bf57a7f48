// Package petapp is a small application used to exercise the mock: humans,
// pets and the soulmate pairs between them.
package petapp

import (
	"database/sql/driver"

	"github.com/kbukum/gormock/mock"
)

// Species is stored by value; mock data may also use the symbolic name.
type Species string

const (
	Dog Species = "dog"
	Cat Species = "cat"
)

var speciesEnum = mock.NewEnum("species", map[string]Species{
	"DOG": Dog,
	"CAT": Cat,
})

// ParseSpecies accepts a stored value or a symbolic name.
func ParseSpecies(src any) (Species, error) {
	return speciesEnum.Parse(src)
}

// Scan implements sql.Scanner.
func (s *Species) Scan(src any) error {
	v, err := speciesEnum.Parse(src)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Value implements driver.Valuer. The zero value is stored as NULL.
func (s Species) Value() (driver.Value, error) {
	if s == "" {
		return nil, nil
	}
	return string(s), nil
}

type Human struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:64;not null"`
}

type Pet struct {
	ID      uint    `gorm:"primaryKey"`
	Name    string  `gorm:"size:64;not null"`
	Species Species `gorm:"type:varchar(8);not null;check:chk_pet_species,species IN ('cat','dog')"`
}

// Soulmates pairs a human with a pet.
type Soulmates struct {
	ID      uint   `gorm:"primaryKey"`
	HumanID uint   `gorm:"not null"`
	Human   *Human `gorm:"constraint:OnDelete:CASCADE"`
	PetID   uint   `gorm:"not null"`
	Pet     *Pet   `gorm:"constraint:OnDelete:CASCADE"`
}

// Models lists the models in dependency order.
func Models() []any {
	return []any{&Human{}, &Pet{}, &Soulmates{}}
}
