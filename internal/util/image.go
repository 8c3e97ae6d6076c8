package util

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// Image payloads arrive either as data URLs (data:image/png;base64,....) or
// as bare base64.

func splitDataURL(payload string) (mediaType string, encoded string, ok bool) {
	rest, found := strings.CutPrefix(payload, "data:")
	if !found {
		return "", payload, false
	}

	meta, data, found := strings.Cut(rest, ",")
	if !found {
		return "", payload, false
	}

	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", payload, false
	}

	return mediaType, data, true
}

// DecodeImage returns the media type and raw bytes of an image payload. The
// media type is sniffed when the payload is bare base64.
func DecodeImage(payload string) (string, []byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", nil, fmt.Errorf("empty image payload")
	}

	mediaType, encoded, _ := splitDataURL(payload)

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode image base64: %v", err)
	}

	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}

	if !strings.HasPrefix(mediaType, "image/") {
		return "", nil, fmt.Errorf("unsupported image media type %s", mediaType)
	}

	return mediaType, data, nil
}

// ImageDataURL normalizes a payload into a data URL.
func ImageDataURL(payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	if _, _, ok := splitDataURL(payload); ok {
		return payload, nil
	}

	mediaType, data, err := DecodeImage(payload)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("data:%s;base64,%s", mediaType, base64.StdEncoding.EncodeToString(data)), nil
}
