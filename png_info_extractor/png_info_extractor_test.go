package png_info_extractor

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const parameters = "a castle on a hill, café\nNegative prompt: fog\nSteps: 25, Sampler: DDIM, CFG scale: 8, Seed: 7, Size: 64x32, Model hash: 1234abcd, Model: dream"

func encodedPNG(t *testing.T) []byte {
	t.Helper()

	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, image.NewRGBA(image.Rect(0, 0, 64, 32))))

	return buf.Bytes()
}

func TestEmbedAndExtractLatin1(t *testing.T) {
	data, err := EmbedParameters(encodedPNG(t), parameters)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err, "embedded chunk must keep the file valid")
	assert.Equal(t, 64, img.Bounds().Dx())

	extractor, err := New(Config{PngData: data})
	require.NoError(t, err)

	info, err := extractor.ExtractDiffusionInfo()
	require.NoError(t, err)
	assert.Equal(t, parameters, info.Parameters)
}

func TestEmbedAndExtractUTF8(t *testing.T) {
	text := "桜の木, 夜\nSteps: 20, Sampler: Euler"

	data, err := EmbedParameters(encodedPNG(t), text)
	require.NoError(t, err)

	_, err = png.Decode(bytes.NewReader(data))
	require.NoError(t, err)

	extractor, err := New(Config{PngData: data})
	require.NoError(t, err)

	info, err := extractor.ExtractDiffusionInfo()
	require.NoError(t, err)
	assert.Equal(t, text, info.Parameters)
}

func TestExtractWithoutParameters(t *testing.T) {
	extractor, err := New(Config{PngData: encodedPNG(t)})
	require.NoError(t, err)

	info, err := extractor.ExtractDiffusionInfo()
	require.NoError(t, err)
	assert.Empty(t, info.Parameters)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(Config{})
	assert.EqualError(t, err, "png data is nil")

	_, err = New(Config{PngData: []byte("GIF89a....")})
	assert.EqualError(t, err, "wrong PNG header")

	data, err := EmbedParameters(encodedPNG(t), parameters)
	require.NoError(t, err)

	// flip a byte inside the parameters chunk
	corrupt := append([]byte(nil), data...)
	corrupt[8+25+12] ^= 0xff

	_, err = New(Config{PngData: corrupt})
	assert.ErrorContains(t, err, "bad CRC")

	_, err = New(Config{PngData: data[:len(data)-6]})
	assert.Error(t, err)

	_, err = EmbedParameters([]byte("short"), parameters)
	assert.Error(t, err)
}
