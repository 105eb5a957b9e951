package processor

import (
	"encoding/json"
	"errors"
	"strings"
)

// MovieClipRequest is the structured movie-clip input. It is serialized to a
// single string so it can travel through the ordinary one-input dispatch path.
type MovieClipRequest struct {
	Description  string `json:"description"`
	ClipType     string `json:"clip_type"`
	Style        string `json:"style"`
	TargetLength int    `json:"target_length"`
}

// Validate checks that every field is set.
func (r MovieClipRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.Description) == "":
		return errors.New("description is required")
	case strings.TrimSpace(r.ClipType) == "":
		return errors.New("clip_type is required")
	case strings.TrimSpace(r.Style) == "":
		return errors.New("style is required")
	case r.TargetLength <= 0:
		return errors.New("target_length must be positive")
	}
	return nil
}

// Encode validates r and serializes it.
func (r MovieClipRequest) Encode() (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeMovieClip parses a string produced by Encode.
func DecodeMovieClip(raw string) (MovieClipRequest, error) {
	var r MovieClipRequest
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return MovieClipRequest{}, err
	}
	return r, nil
}

func looksEncoded(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), "{")
}
