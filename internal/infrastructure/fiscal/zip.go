package fiscal

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"

	"github.com/klauspost/compress/flate"
)

var nonDigit = regexp.MustCompile(`[^0-9]`)

// documentFilename builds the XML entry name inside the zip:
// {CNPJ digits}-{model}-{series}-{number}.xml.
func documentFilename(cnpj string, model int, series int, number int64) string {
	return fmt.Sprintf("%s-%d-%d-%d.xml",
		nonDigit.ReplaceAllString(cnpj, ""), model, series, number)
}

// packageXML wraps the document XML in an in-memory zip archive, the
// format the authority endpoint expects. A single entry per archive.
func packageXML(xmlBytes []byte, name string) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	fw, err := zw.Create(name)
	if err != nil {
		return nil, fmt.Errorf("zip: create entry %s: %w", name, err)
	}
	if _, err := fw.Write(xmlBytes); err != nil {
		return nil, fmt.Errorf("zip: write xml: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close archive: %w", err)
	}
	return buf.Bytes(), nil
}
