// Package training looks up human-subjects training records. Training
// lives in a separate system of record from the portal database.
package training

import (
	"context"
	"errors"
	"time"
)

// ErrNoTraining reports that no training record exists for the user
var ErrNoTraining = errors.New("no training on file")

// ErrExpired reports that training exists but has lapsed
var ErrExpired = errors.New("training expired")

// Record is a completed human-subjects training course
type Record struct {
	UserID    string    `json:"user_id"`
	Course    string    `json:"course"`
	Completed time.Time `json:"completed"`
	Expires   time.Time `json:"expires"`
}

// Registry answers whether a user's human-subjects training is current.
// Current returns the latest unexpired record, ErrExpired when every
// record has lapsed, and ErrNoTraining when none exists. The two
// failures are distinct so callers can tell the user what to fix.
type Registry interface {
	Current(ctx context.Context, userID string) (Record, error)
}
