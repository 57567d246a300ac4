package history

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// compressedMarker prefixes cache payloads that were gzip-compressed.
// Raw payloads carry no marker, so decoding stays backward compatible with
// entries written before compression existed.
const compressedMarker = "gz:"

// encodePayload returns raw as-is when it fits under threshold, otherwise a
// gzip-compressed, base64-wrapped form carrying the marker.
func encodePayload(raw []byte, threshold int) (string, bool, error) {
	if len(raw) <= threshold {
		return string(raw), false, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return "", false, fmt.Errorf("compress payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", false, fmt.Errorf("compress payload: %w", err)
	}
	return compressedMarker + base64.StdEncoding.EncodeToString(buf.Bytes()), true, nil
}

// decodePayload reverses encodePayload. Payloads without the marker pass
// through unchanged.
func decodePayload(s string) ([]byte, error) {
	if !strings.HasPrefix(s, compressedMarker) {
		return []byte(s), nil
	}

	packed, err := base64.StdEncoding.DecodeString(s[len(compressedMarker):])
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(packed))
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}
	return raw, nil
}
