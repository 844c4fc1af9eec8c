// Package captcha generates simple distorted-text image challenges for
// the registration endpoint. A challenge is single-use; the atomic burn
// lives in the store layer (internal/db.CaptchaRepo.VerifyAndBurn), and
// this package only generates the answer and renders the image, built on
// the standard library's image/png stack plus golang.org/x/image/font
// for glyph rendering.
package captcha

import (
	"bytes"
	"crypto/rand"
	"image"
	"image/color"
	"image/png"
	"math/big"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	answerLength = 6
	answerChars  = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ" // excludes 0/O/1/I for legibility
	width        = 200
	height       = 80
)

// Generate produces a new random answer string and its rendered PNG.
func Generate() (answer string, png []byte, err error) {
	answer, err = randomAnswer()
	if err != nil {
		return "", nil, err
	}
	img, err := render(answer)
	if err != nil {
		return "", nil, err
	}
	return answer, img, nil
}

func randomAnswer() (string, error) {
	out := make([]byte, answerLength)
	max := big.NewInt(int64(len(answerChars)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = answerChars[n.Int64()]
	}
	return string(out), nil
}

func render(answer string) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	bg := color.RGBA{R: 245, G: 245, B: 245, A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, bg)
		}
	}

	if err := drawNoise(img); err != nil {
		return nil, err
	}

	face := basicfont.Face7x13
	fg := color.RGBA{R: 20, G: 20, B: 60, A: 255}
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: face,
	}

	charWidth := width / (len(answer) + 1)
	x := charWidth / 2
	for i, ch := range answer {
		jitter, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return nil, err
		}
		baseline := height/2 + int(jitter.Int64()) - 5
		drawer.Dot = fixed.P(x+i*charWidth, baseline)
		drawer.DrawString(string(ch))
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func drawNoise(img *image.RGBA) error {
	bounds := img.Bounds()
	dotCount := bounds.Dx() * bounds.Dy() / 40
	noiseColor := color.RGBA{R: 190, G: 190, B: 200, A: 255}
	maxX := big.NewInt(int64(bounds.Dx()))
	maxY := big.NewInt(int64(bounds.Dy()))
	for i := 0; i < dotCount; i++ {
		x, err := rand.Int(rand.Reader, maxX)
		if err != nil {
			return err
		}
		y, err := rand.Int(rand.Reader, maxY)
		if err != nil {
			return err
		}
		img.Set(int(x.Int64()), int(y.Int64()), noiseColor)
	}
	return nil
}
