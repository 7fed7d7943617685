package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{name: "a.txt", valid: true},
		{name: "no-extension", valid: true},
		{name: ".hidden", valid: true},
		{name: "with space.bin", valid: true},
		{name: "", valid: false},
		{name: ".", valid: false},
		{name: "..", valid: false},
		{name: "dir/a.txt", valid: false},
		{name: "../etc/passwd", valid: false},
		{name: `dir\a.txt`, valid: false},
		{name: "nul\x00byte", valid: false},
		{name: TempPrefix + "123", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.name)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidName)
			}
		})
	}
}

func TestNotFoundWraps(t *testing.T) {
	err := NotFound("missing.txt")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "missing.txt")
}
