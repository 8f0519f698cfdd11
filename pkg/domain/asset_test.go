package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "civitas/pkg/domain-errors"
)

func TestParseAsset(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple symbol", "CIV", false},
		{"with digits", "CIV2", false},
		{"single char", "X", false},
		{"sixteen chars", strings.Repeat("A", 16), false},
		{"empty", "", true},
		{"seventeen chars", strings.Repeat("A", 17), true},
		{"lowercase", "civ", true},
		{"whitespace", "CI V", true},
		{"punctuation", "CIV-1", true},
		{"unicode", "CÏV", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAsset(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Asset(tt.input), got)
			assert.True(t, got.IsValid())
		})
	}
}
