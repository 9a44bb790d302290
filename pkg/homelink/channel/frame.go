package channel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var (
	errNotObject = errors.New("frame is not a JSON object")
	errNotScalar = errors.New("value is not a scalar")
)

type envelope struct {
	Type   string
	Action string
	Data   json.RawMessage
}

// decodeEnvelope reads the routing fields of a frame. Only JSON objects are
// frames. A scalar type or action is used as text, so {"action":5} routes
// to action "5".
func decodeEnvelope(data []byte) (envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return envelope{}, err
	}
	if fields == nil {
		return envelope{}, errNotObject
	}

	typ, err := scalarText(fields["type"])
	if err != nil {
		return envelope{}, fmt.Errorf("type: %w", err)
	}
	action, err := scalarText(fields["action"])
	if err != nil {
		return envelope{}, fmt.Errorf("action: %w", err)
	}

	return envelope{Type: typ, Action: action, Data: fields["data"]}, nil
}

// scalarText renders a JSON scalar as text. Absent and null are "".
func scalarText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	switch raw[0] {
	case '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case '{', '[':
		return "", errNotScalar
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", err
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}
