// Package codec renders values for the command line.
package codec

import (
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

type Codec interface {
	Encode(w io.Writer, v any) error
}

// JSONLines writes one compact JSON document per line.
type JSONLines struct{}

func (JSONLines) Encode(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

// PrettyJSON writes indented JSON.
type PrettyJSON struct{}

func (PrettyJSON) Encode(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

// ByName returns the codec for "jsonl" or "json".
func ByName(name string) (Codec, error) {
	switch name {
	case "", "jsonl":
		return JSONLines{}, nil
	case "json":
		return PrettyJSON{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", name)
	}
}
