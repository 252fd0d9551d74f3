// Package db persists settings records as opaque documents.
//
// Records are keyed by scope: "experiment/<id>" or "project/<id>".
// The body of a record is JSON, and this package does not look into it.
package db

import (
	"context"
	"errors"
	"strings"
)

// ErrMissing is returned when requested record is not found.
var ErrMissing = errors.New("missing")

const (
	experimentPrefix = "experiment/"
	projectPrefix    = "project/"
)

func ExperimentKey(id string) string {
	return experimentPrefix + id
}

func ProjectKey(id string) string {
	return projectPrefix + id
}

// IsProjectKey tells whether the key is for a project-level record.
func IsProjectKey(key string) bool {
	return strings.HasPrefix(key, projectPrefix)
}

type SettingsInterface interface {
	// Load a record body.
	//
	// # Returns
	//
	// - []byte: JSON body
	//
	// - error: ErrMissing if no record is saved for the key.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save a record body, replacing the existing one.
	Save(ctx context.Context, key string, body []byte) error

	// Delete a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, key string) error
}
