// Package watch selects and reshapes channel events for display, and keeps
// an idle channel alive on a schedule.
package watch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/amir-yaghoubi/mqttpattern"
	"github.com/itchyny/gojq"
	"github.com/tsarna/homelink/pkg/homelink/channel"
)

// Filter matches events by topic pattern and optionally runs a jq query
// over their payloads.
//
// An event's topic is its type, or "type/action" when it has an action, so
// "device/+" matches every device action and "#" matches everything.
type Filter struct {
	patterns []string
	query    string
	code     *gojq.Code
}

// NewFilter compiles jq (which may be empty). No patterns means "#". The
// query can refer to $topic, $type and $action.
func NewFilter(patterns []string, jq string) (*Filter, error) {
	if len(patterns) == 0 {
		patterns = []string{"#"}
	}
	f := &Filter{patterns: patterns, query: jq}

	if jq != "" {
		query, err := gojq.Parse(jq)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq query '%s': %w", jq, err)
		}
		f.code, err = gojq.Compile(query, gojq.WithVariables([]string{"$topic", "$type", "$action"}))
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq query '%s': %w", jq, err)
		}
	}
	return f, nil
}

// Topic returns the topic an event is matched under.
func Topic(ev channel.Event) string {
	return ev.Key().String()
}

// Matches reports whether any pattern matches the event topic.
func (f *Filter) Matches(ev channel.Event) bool {
	topic := Topic(ev)
	for _, pattern := range f.patterns {
		if mqttpattern.Matches(pattern, topic) {
			return true
		}
	}
	return false
}

// Apply returns the values to print for ev: the decoded payload, or every
// result of the jq query. A query that yields nothing drops the event.
func (f *Filter) Apply(ev channel.Event) ([]any, error) {
	var input any
	if err := json.Unmarshal(ev.Payload, &input); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	if f.code == nil {
		return []any{input}, nil
	}

	var out []any
	iter := f.code.Run(input, Topic(ev), ev.Type, ev.Action)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			var halt *gojq.HaltError
			if errors.As(err, &halt) && halt.Value() == nil {
				break
			}
			return out, fmt.Errorf("jq query '%s' failed: %w", f.query, err)
		}
		out = append(out, v)
	}
	return out, nil
}
