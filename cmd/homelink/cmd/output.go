package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

func outputFormat(name string) (string, error) {
	switch name {
	case formatJSON, formatYAML:
		return name, nil
	case "yml":
		return formatYAML, nil
	}
	return "", fmt.Errorf("unknown output format %q (want json or yaml)", name)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// writeBody prints a response body. JSON bodies are re-encoded in the
// requested format; anything else is copied as is.
func writeBody(w io.Writer, body []byte, format string) error {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		_, err = w.Write(body)
		return err
	}

	if format == formatYAML {
		return writeYAML(w, v)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
