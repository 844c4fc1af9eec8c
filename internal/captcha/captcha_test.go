package captcha

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_AnswerUsesOnlyLegibleCharset(t *testing.T) {
	answer, img, err := Generate()
	require.NoError(t, err)
	assert.Len(t, answer, answerLength)
	for _, ch := range answer {
		assert.Contains(t, answerChars, string(ch))
	}
	assert.NotEmpty(t, img)
}

func TestGenerate_ProducesValidPNG(t *testing.T) {
	_, img, err := Generate()
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, width, decoded.Bounds().Dx())
	assert.Equal(t, height, decoded.Bounds().Dy())
}

func TestGenerate_AnswersVaryAcrossCalls(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		answer, _, err := Generate()
		require.NoError(t, err)
		seen[answer] = true
	}
	assert.Greater(t, len(seen), 1)
}
