// chunk walking adapted from https://github.com/parsiya/Go-Security/blob/master/png-tests/png-chunk-extraction.go

package png_info_extractor

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"log"
)

// 89 50 4E 47 0D 0A 1A 0A
var pngHeader = "\x89\x50\x4E\x47\x0D\x0A\x1A\x0A"

const (
	parametersKeyword = "parameters"

	chunkTypeText          = "tEXt"
	chunkTypeInternational = "iTXt"
	chunkTypeEnd           = "IEND"

	// refuse chunk lengths above this to avoid huge allocations on corrupt files
	maxChunkLength = 64 << 20
)

// Each chunk starts with a uint32 length (big endian), then 4 byte name,
// then data and finally the CRC32 of type and data.
type chunk struct {
	CType string
	Data  []byte
}

func readChunk(r io.Reader) (*chunk, error) {
	buf := make([]byte, 8)

	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(buf[0:4])
	if length > maxChunkLength {
		return nil, fmt.Errorf("chunk length %d too large", length)
	}

	c := &chunk{
		CType: string(buf[4:8]),
		Data:  make([]byte, length),
	}

	if _, err := io.ReadFull(r, c.Data); err != nil {
		return nil, err
	}

	if _, err := io.ReadFull(r, buf[0:4]); err != nil {
		return nil, err
	}

	crc := crc32.NewIEEE()
	crc.Write(buf[4:8])
	crc.Write(c.Data)

	// buf[4:8] still holds the type; compare against the stored checksum
	if crc.Sum32() != binary.BigEndian.Uint32(buf[0:4]) {
		return nil, fmt.Errorf("bad CRC for %s chunk", c.CType)
	}

	return c, nil
}

type extractorImpl struct {
	chunks []*chunk
}

type Config struct {
	PngData []byte
}

func New(cfg Config) (Extractor, error) {
	if cfg.PngData == nil {
		return nil, errors.New("png data is nil")
	}

	imgFile := bytes.NewReader(cfg.PngData)

	header := make([]byte, len(pngHeader))

	if _, err := io.ReadFull(imgFile, header); err != nil {
		log.Printf("Error reading PNG header: %v", err)

		return nil, err
	}

	if string(header) != pngHeader {
		log.Printf("Wrong PNG header.\nGot %x - Expected %x\n", header, pngHeader)

		return nil, errors.New("wrong PNG header")
	}

	extractor := &extractorImpl{}

	for {
		c, err := readChunk(imgFile)
		if err != nil {
			return nil, fmt.Errorf("reading chunk %d: %w", len(extractor.chunks), err)
		}

		extractor.chunks = append(extractor.chunks, c)

		if c.CType == chunkTypeEnd {
			break
		}
	}

	return extractor, nil
}

type PNGInfo struct {
	// Parameters is the full generation log the webui embeds in the image.
	Parameters string
}

func (e *extractorImpl) ExtractDiffusionInfo() (*PNGInfo, error) {
	for i, c := range e.chunks {
		var keyword, text string
		var err error

		switch c.CType {
		case chunkTypeText:
			keyword, text = parseText(c.Data)
		case chunkTypeInternational:
			keyword, text, err = parseInternationalText(c.Data)
		default:
			continue
		}

		if err != nil {
			log.Printf("Failed to read chunk %d: %v", i, err)

			return nil, err
		}

		if keyword == parametersKeyword {
			return &PNGInfo{
				Parameters: text,
			}, nil
		}
	}

	return &PNGInfo{
		Parameters: "",
	}, nil
}

// tEXt: keyword, NUL, latin-1 text.
func parseText(data []byte) (string, string) {
	keyword, text, found := bytes.Cut(data, []byte{0})
	if !found {
		return "", ""
	}

	runes := make([]rune, len(text))
	for i, b := range text {
		runes[i] = rune(b)
	}

	return string(keyword), string(runes)
}

// iTXt: keyword, NUL, compression flag, compression method, language tag, NUL,
// translated keyword, NUL, UTF-8 text (zlib compressed when the flag is set).
func parseInternationalText(data []byte) (string, string, error) {
	keyword, rest, found := bytes.Cut(data, []byte{0})
	if !found || len(rest) < 2 {
		return "", "", errors.New("truncated iTXt chunk")
	}

	compressed := rest[0] == 1
	rest = rest[2:]

	_, rest, found = bytes.Cut(rest, []byte{0})
	if !found {
		return "", "", errors.New("truncated iTXt language tag")
	}

	_, rest, found = bytes.Cut(rest, []byte{0})
	if !found {
		return "", "", errors.New("truncated iTXt translated keyword")
	}

	if !compressed {
		return string(keyword), string(rest), nil
	}

	reader, err := zlib.NewReader(bytes.NewReader(rest))
	if err != nil {
		return "", "", err
	}

	defer reader.Close()

	text, err := io.ReadAll(reader)
	if err != nil {
		return "", "", err
	}

	return string(keyword), string(text), nil
}

// EmbedParameters returns a copy of pngData with a "parameters" text chunk placed
// right after IHDR, the way the webui stores the generation log.
func EmbedParameters(pngData []byte, parameters string) ([]byte, error) {
	const ihdrEnd = 8 + 8 + 13 + 4

	if len(pngData) < ihdrEnd || string(pngData[:len(pngHeader)]) != pngHeader {
		return nil, errors.New("wrong PNG header")
	}

	ctype := chunkTypeText
	data := append([]byte(parametersKeyword), 0)

	if isLatin1(parameters) {
		for _, r := range parameters {
			data = append(data, byte(r))
		}
	} else {
		// uncompressed iTXt with empty language tag and translated keyword
		ctype = chunkTypeInternational
		data = append(data, 0, 0, 0, 0)
		data = append(data, parameters...)
	}

	out := make([]byte, 0, len(pngData)+len(data)+12)
	out = append(out, pngData[:ihdrEnd]...)
	out = appendChunk(out, ctype, data)
	out = append(out, pngData[ihdrEnd:]...)

	return out, nil
}

func appendChunk(out []byte, ctype string, data []byte) []byte {
	out = binary.BigEndian.AppendUint32(out, uint32(len(data)))
	out = append(out, ctype...)
	out = append(out, data...)

	crc := crc32.NewIEEE()
	crc.Write([]byte(ctype))
	crc.Write(data)

	return binary.BigEndian.AppendUint32(out, crc.Sum32())
}

func isLatin1(s string) bool {
	for _, r := range s {
		if r > 0xff {
			return false
		}
	}

	return true
}
