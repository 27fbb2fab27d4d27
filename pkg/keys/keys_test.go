package keys

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateControlKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", "AWS.ControlCatalog#1.0#API_GW_CACHE_ENABLED", false},
		{"valid with hash in control id", "NIST-SP-800-53#R5#AC-1#a", false},
		{"empty", "", true},
		{"no separators", "invalid-format", true},
		{"one separator", "AWS.EC2#1.0", true},
		{"empty control id", "AWS.EC2#1.0#", true},
		{"too long", "A#1#" + strings.Repeat("x", MaxControlKeyLength), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := ValidateControlKey(tt.key)
			if tt.wantErr {
				assert.NotEmpty(t, msg)
			} else {
				assert.Empty(t, msg)
			}
		})
	}
}

func TestValidateFrameworkKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", "NIST-SP-800-53#R5", false},
		{"valid dotted", "AWS.ControlCatalog#1.0", false},
		{"empty", "", true},
		{"no separator", "NIST-SP-800-53", true},
		{"two separators", "NIST#R5#extra", true},
		{"too long", strings.Repeat("x", MaxFrameworkKeyLength) + "#1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := ValidateFrameworkKey(tt.key)
			if tt.wantErr {
				assert.NotEmpty(t, msg)
			} else {
				assert.Empty(t, msg)
			}
		})
	}
}

func TestValidateTargetControlIDs(t *testing.T) {
	assert.Empty(t, ValidateTargetControlIDs(nil))
	assert.Empty(t, ValidateTargetControlIDs([]string{"AC-1", "AC-2"}))
	assert.NotEmpty(t, ValidateTargetControlIDs([]string{"AC-1", ""}))

	tooMany := make([]string, MaxTargetControlIDs+1)
	for i := range tooMany {
		tooMany[i] = "AC-1"
	}
	assert.NotEmpty(t, ValidateTargetControlIDs(tooMany))
}

func TestParseControlKey(t *testing.T) {
	name, version, id, err := ParseControlKey("NIST-SP-800-53#R5#AC-1#a")
	require.NoError(t, err)
	assert.Equal(t, "NIST-SP-800-53", name)
	assert.Equal(t, "R5", version)
	assert.Equal(t, "AC-1#a", id)

	_, _, _, err = ParseControlKey("no-separators")
	assert.Error(t, err)
}

func TestFrameworkKeyOf(t *testing.T) {
	fk, err := FrameworkKeyOf("AWS.ControlCatalog#1.0#IAM.21")
	require.NoError(t, err)
	assert.Equal(t, "AWS.ControlCatalog#1.0", fk)
}

func TestControlIDOf(t *testing.T) {
	assert.Equal(t, "IAM.21", ControlIDOf("AWS.ControlCatalog#1.0#IAM.21"))
	assert.Equal(t, "garbage", ControlIDOf("garbage"))
}

func TestBuildControlKey(t *testing.T) {
	assert.Equal(t, "NIST-SP-800-53#R5#AC-1", BuildControlKey("NIST-SP-800-53#R5", "AC-1"))
}
