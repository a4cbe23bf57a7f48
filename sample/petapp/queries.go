package petapp

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// ErrNoDatabase is returned while no database is configured.
var ErrNoDatabase = errors.New("petapp: no database configured")

// OpenSession returns the session the queries run on. Applications set it
// at startup.
var OpenSession = func(ctx context.Context) (*gorm.DB, error) {
	return nil, ErrNoDatabase
}

func QueryHumans(ctx context.Context) ([]Human, error) {
	db, err := OpenSession(ctx)
	if err != nil {
		return nil, err
	}
	var humans []Human
	err = db.Order("id").Find(&humans).Error
	return humans, err
}

func QueryPets(ctx context.Context) ([]Pet, error) {
	db, err := OpenSession(ctx)
	if err != nil {
		return nil, err
	}
	var pets []Pet
	err = db.Order("id").Find(&pets).Error
	return pets, err
}

// QuerySoulmates returns every pair with its human and pet.
func QuerySoulmates(ctx context.Context) ([]Soulmates, error) {
	db, err := OpenSession(ctx)
	if err != nil {
		return nil, err
	}
	var pairs []Soulmates
	err = db.InnerJoins("Human").InnerJoins("Pet").Order("soulmates.id").Find(&pairs).Error
	return pairs, err
}

func CreateHuman(ctx context.Context, name string) (*Human, error) {
	db, err := OpenSession(ctx)
	if err != nil {
		return nil, err
	}
	h := &Human{Name: name}
	if err := db.Create(h).Error; err != nil {
		return nil, err
	}
	return h, nil
}
