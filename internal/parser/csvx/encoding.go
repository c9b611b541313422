package csvx

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Encoding names reported by DetectEncoding. The detection order is a
// fixed priority list: UTF-8, UTF-8 with BOM, UTF-16 (BOM only), then
// Windows-1252 as the fallback for anything that is not valid UTF-8.
// Windows-1252 is a superset of printable Latin-1 and is what
// spreadsheet exports actually produce.
const (
	EncUTF8     = "utf-8"
	EncUTF8BOM  = "utf-8-bom"
	EncUTF16LE  = "utf-16le"
	EncUTF16BE  = "utf-16be"
	EncWin1252  = "windows-1252"
	sniffBudget = 8 << 10
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DetectEncoding inspects the first bytes of the sample and names the
// encoding the priority list settles on. It never fails; the fallback
// always decodes.
func DetectEncoding(sample []byte) string {
	switch {
	case bytes.HasPrefix(sample, bomUTF8):
		return EncUTF8BOM
	case bytes.HasPrefix(sample, bomUTF16LE):
		return EncUTF16LE
	case bytes.HasPrefix(sample, bomUTF16BE):
		return EncUTF16BE
	}
	if len(sample) > sniffBudget {
		// Cut on a rune boundary so a split multibyte sequence at the
		// budget edge does not flip the verdict.
		cut := sniffBudget
		for cut > 0 && !utf8.Valid(sample[:cut]) {
			cut--
		}
		if cut > 0 {
			sample = sample[:cut]
		}
	}
	if utf8.Valid(sample) {
		return EncUTF8
	}
	return EncWin1252
}

// DecodeReader wraps r so the caller always reads UTF-8, regardless of
// the source encoding. The returned name is the detected encoding.
func DecodeReader(r io.Reader) (io.Reader, string, error) {
	br := bufio.NewReaderSize(r, sniffBudget)
	peek, err := br.Peek(sniffBudget)
	if err != nil && err != io.EOF {
		return nil, "", err
	}

	enc := DetectEncoding(peek)
	switch enc {
	case EncUTF8:
		return br, enc, nil
	case EncUTF8BOM:
		if _, err := br.Discard(len(bomUTF8)); err != nil {
			return nil, "", err
		}
		return br, enc, nil
	case EncUTF16LE:
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		return transform.NewReader(br, dec), enc, nil
	case EncUTF16BE:
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		return transform.NewReader(br, dec), enc, nil
	default:
		return transform.NewReader(br, charmap.Windows1252.NewDecoder()), enc, nil
	}
}
