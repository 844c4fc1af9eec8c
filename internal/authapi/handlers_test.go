package authapi

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/arc-auth/gateway/internal/errors"
)

func TestRandomSixDigitCode(t *testing.T) {
	pattern := regexp.MustCompile(`^\d{6}$`)
	for i := 0; i < 50; i++ {
		code, err := randomSixDigitCode()
		require.NoError(t, err)
		assert.Regexp(t, pattern, code)
	}
}

func TestValidateSrpMaterial(t *testing.T) {
	goodSalt := strings.Repeat("ab", 16)
	goodVerifier := strings.Repeat("cd", 64)

	assert.Nil(t, validateSrpMaterial(goodSalt, goodVerifier))

	cases := []struct {
		name, salt, verifier string
	}{
		{"short salt", "abcd", goodVerifier},
		{"short verifier", goodSalt, "cdcd"},
		{"non-hex salt", strings.Repeat("zz", 16), goodVerifier},
		{"non-hex verifier", goodSalt, strings.Repeat("zz", 64)},
		{"empty", "", ""},
	}
	for _, c := range cases {
		appErr := validateSrpMaterial(c.salt, c.verifier)
		require.NotNil(t, appErr, c.name)
		assert.Equal(t, apperrors.ErrWeakPassword, appErr.Code, c.name)
	}
}
