package models

import (
	"fmt"

	"github.com/google/uuid"
)

func GenerateBetID() string {
	return uuid.New().String()
}

func GenerateEntryID() string {
	return "le_" + uuid.New().String()
}

func GenerateSeedID() string {
	return "seed_" + uuid.New().String()
}

// Validate checks the request shape only; stake precision and game params are
// validated by the engine against its configuration.
func (r *PlaceBetRequest) Validate() error {
	if !r.GameType.Valid() {
		return fmt.Errorf("%w: unknown game type %q", ErrInvalidParams, r.GameType)
	}
	if !r.Stake.IsPositive() {
		return fmt.Errorf("%w: stake must be positive", ErrInvalidParams)
	}
	if len(r.ClientSeed) > 64 {
		return fmt.Errorf("%w: client seed longer than 64 characters", ErrInvalidParams)
	}
	return nil
}
