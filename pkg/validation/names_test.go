// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"errors"
	"testing"
)

func TestValidateSource(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr bool
	}{
		// Valid sources
		{"upper", "GDSC", false},
		{"mixed case", "gCSI", false},
		{"with digits", "NCI60", false},
		{"with hyphen", "CCLE-v2", false},
		{"single char", "A", false},
		{"max length", "ABCDEFGHIJKLMNOPQRSTUVWXYZ012345", false},

		// Invalid sources
		{"empty", "", true},
		{"too long", "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456", true},
		{"parent dir", "..", true},
		{"path separator", "GDSC/../etc", true},
		{"dot", "GDSC.v2", true},
		{"starts with hyphen", "-GDSC", true},
		{"spaces", "GD SC", true},
		{"newline", "GDSC\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSource(tt.src)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSource(%q) error = %v, wantErr %v", tt.src, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidName) {
				t.Errorf("ValidateSource(%q) error = %v, want ErrInvalidName", tt.src, err)
			}
		})
	}
}

func TestValidateRunKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"canonical", "6ba7b810-9dad-51d1-80b4-00c04fd430c8", false},
		{"empty", "", true},
		{"upper case", "6BA7B810-9DAD-51D1-80B4-00C04FD430C8", true},
		{"braced", "{6ba7b810-9dad-51d1-80b4-00c04fd430c8}", true},
		{"urn", "urn:uuid:6ba7b810-9dad-51d1-80b4-00c04fd430c8", true},
		{"prefix only", "6ba7b810", true},
		{"with slash", "6ba7b810-9dad-51d1-80b4-00c04fd430c8/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRunKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRunKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestValidateRunKeys(t *testing.T) {
	good := "6ba7b810-9dad-51d1-80b4-00c04fd430c8"

	if err := ValidateRunKeys([]string{good, good}); err != nil {
		t.Errorf("ValidateRunKeys() unexpected error = %v", err)
	}
	if err := ValidateRunKeys(nil); err != nil {
		t.Errorf("ValidateRunKeys(nil) unexpected error = %v", err)
	}
	err := ValidateRunKeys([]string{good, "bad", "worse"})
	if err == nil {
		t.Fatal("ValidateRunKeys() expected error")
	}
	if !errors.Is(err, ErrInvalidName) {
		t.Errorf("ValidateRunKeys() error = %v, want ErrInvalidName", err)
	}
}

func TestSanitizeRunKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"already canonical", "6ba7b810-9dad-51d1-80b4-00c04fd430c8", "6ba7b810-9dad-51d1-80b4-00c04fd430c8", false},
		{"upper case", "6BA7B810-9DAD-51D1-80B4-00C04FD430C8", "6ba7b810-9dad-51d1-80b4-00c04fd430c8", false},
		{"whitespace", "  6ba7b810-9dad-51d1-80b4-00c04fd430c8\n", "6ba7b810-9dad-51d1-80b4-00c04fd430c8", false},
		{"garbage", "not-a-key", "", true},
		{"empty", "   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeRunKey(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("SanitizeRunKey(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SanitizeRunKey(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
