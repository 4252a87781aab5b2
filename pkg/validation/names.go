// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks user-provided names before they reach file
// paths or checkpoint keys.
//
// The data source name becomes the first component of every run directory
// and the run key is a prefix in the checkpoint store, so both are
// restricted to a small alphabet that cannot traverse paths or widen a
// prefix scan.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidName is wrapped by every validation failure.
var ErrInvalidName = errors.New("invalid name")

// sourcePattern matches data source names such as GDSC, CTRP, NCI60 or gCSI.
// Max length: 32 characters.
var sourcePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-]{0,31}$`)

// ValidateSource validates a data source name.
//
// Example:
//
//	if err := validation.ValidateSource(split.Source); err != nil {
//	    return fmt.Errorf("data directory: %w", err)
//	}
func ValidateSource(src string) error {
	if src == "" {
		return fmt.Errorf("%w: source cannot be empty", ErrInvalidName)
	}
	if !sourcePattern.MatchString(src) {
		return fmt.Errorf("%w: source %q (must be 1-32 letters, digits or hyphens)", ErrInvalidName, src)
	}
	return nil
}

// ValidateRunKey validates a checkpoint run key. Run keys are UUIDs in
// canonical lowercase form.
func ValidateRunKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: run key cannot be empty", ErrInvalidName)
	}
	id, err := uuid.Parse(key)
	if err != nil || id.String() != key {
		return fmt.Errorf("%w: run key %q (must be a lowercase UUID)", ErrInvalidName, key)
	}
	return nil
}

// ValidateRunKeys validates multiple run keys.
// Returns an error listing all invalid keys if any fail validation.
func ValidateRunKeys(keys []string) error {
	var invalid []string
	for _, k := range keys {
		if err := ValidateRunKey(k); err != nil {
			invalid = append(invalid, k)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("%w: run keys %v", ErrInvalidName, invalid)
	}
	return nil
}

// SanitizeRunKey normalizes and validates a run key.
// Returns the lowercase key if valid, or an error if invalid.
//
// Use this for keys pasted from logs, which may carry whitespace or be
// upper-cased by other tools:
//
//	key, err := validation.SanitizeRunKey(arg)
//	if err != nil {
//	    return err
//	}
func SanitizeRunKey(key string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(key))
	if err := ValidateRunKey(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
