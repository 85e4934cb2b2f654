package optly

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// PayloadFormat selects how WritePayload encodes a payload.
type PayloadFormat string

// Supported payload formats.
const (
	PayloadFormatJSON PayloadFormat = "json"
	PayloadFormatGzip PayloadFormat = "gzip"
)

// PayloadFormatForPath picks a format from a file name: ".gz" means gzip,
// anything else plain JSON.
func PayloadFormatForPath(path string) PayloadFormat {
	if strings.EqualFold(filepath.Ext(path), ".gz") {
		return PayloadFormatGzip
	}

	return PayloadFormatJSON
}

// WritePayload writes serialized payload JSON to w in the given format.
func WritePayload(w io.Writer, payload []byte, format PayloadFormat) error {
	switch format {
	case PayloadFormatJSON, "":
		_, err := w.Write(payload)
		if err != nil {
			return fmt.Errorf("writing payload: %w", err)
		}

		return nil

	case PayloadFormatGzip:
		zw, err := gzip.NewWriterLevel(w, gzip.BestCompression)
		if err != nil {
			return fmt.Errorf("creating gzip writer: %w", err)
		}

		_, err = zw.Write(payload)
		if err != nil {
			_ = zw.Close()

			return fmt.Errorf("compressing payload: %w", err)
		}

		err = zw.Close()
		if err != nil {
			return fmt.Errorf("finishing gzip stream: %w", err)
		}

		return nil

	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedPayloadFormat, format)
	}
}
