package model

import (
	"encoding/base64"
	"strings"
)

// DecodeImage decodes a base64 image, optionally given as a data URL
// ("data:image/png;base64,...").
func DecodeImage(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, Invalid("malformed image data URL")
		}
		s = s[comma+1:]
	}
	img, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, Invalid("malformed image: %s", err)
	}
	return img, nil
}
