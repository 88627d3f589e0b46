package persistence

import (
	"encoding/json"

	"github.com/flowgate/flowgate/pkg/api"
)

// Flow paths and action results cross the storage boundary as JSON text, the
// same representation the editor collaborator uses on the wire. Empty input
// decodes to nil so a workflow without a cron path round-trips cleanly.

// EncodePath serializes a flow path. A nil or empty path encodes to "".
func EncodePath(path []api.ActionKind) (string, error) {
	if len(path) == 0 {
		return "", nil
	}
	b, err := json.Marshal(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodePath parses a serialized flow path.
func DecodePath(data string) ([]api.ActionKind, error) {
	if data == "" {
		return nil, nil
	}
	var path []api.ActionKind
	if err := json.Unmarshal([]byte(data), &path); err != nil {
		return nil, err
	}
	return path, nil
}

// EncodeActions serializes the per-action results of an execution record.
func EncodeActions(actions []api.ActionResult) (string, error) {
	if len(actions) == 0 {
		return "", nil
	}
	b, err := json.Marshal(actions)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeActions parses serialized action results.
func DecodeActions(data string) ([]api.ActionResult, error) {
	if data == "" {
		return nil, nil
	}
	var actions []api.ActionResult
	if err := json.Unmarshal([]byte(data), &actions); err != nil {
		return nil, err
	}
	return actions, nil
}

// EncodeStrings serializes a channel list.
func EncodeStrings(values []string) (string, error) {
	if len(values) == 0 {
		return "", nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeStrings parses a serialized channel list.
func DecodeStrings(data string) ([]string, error) {
	if data == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(data), &values); err != nil {
		return nil, err
	}
	return values, nil
}
