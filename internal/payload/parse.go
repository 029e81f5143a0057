// Package payload normalizes the two accepted inbound request dialects into a
// canonical types.RequestPayload.
//
// New dialect (text generation only):
//
//	{"input_data": ["prompt", ...], "params": {...}, "task_type": "text-generation"}
//
// Legacy dialect (every other case):
//
//	{"input_data": {"input_string": [...], "parameters": {...}}, "task_type": "..."}
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"

	"scoringd/pkg/types"
)

// AddGenerationPromptKey is stripped from conversational params during
// normalization. Its value is not consumed downstream.
const AddGenerationPromptKey = "add_generation_prompt"

// envelope is the outer request object; input_data stays raw until the
// dialect is known.
type envelope struct {
	InputData json.RawMessage `json:"input_data"`
	Params    json.RawMessage `json:"params"`
	TaskType  string          `json:"task_type"`
}

// shape is the tagged union of the two dialects.
type shape interface {
	decode() (query []any, params map[string]any, err error)
	legacy() bool
}

type newShape struct {
	input  json.RawMessage
	params json.RawMessage
}

type legacyShape struct {
	input json.RawMessage
}

func (s newShape) legacy() bool    { return false }
func (s legacyShape) legacy() bool { return true }

func (s newShape) decode() ([]any, map[string]any, error) {
	q, err := decodeList(s.input)
	if err != nil {
		return nil, nil, err
	}
	p, err := decodeMap(s.params)
	if err != nil {
		return nil, nil, err
	}
	return q, p, nil
}

func (s legacyShape) decode() ([]any, map[string]any, error) {
	fields, ok := objectFields(s.input)
	if !ok {
		return nil, nil, errInputNotObject
	}
	raw, ok := fields["input_string"]
	if !ok {
		return nil, nil, errMissingInputKey
	}
	q, err := decodeList(raw)
	if err != nil {
		return nil, nil, err
	}
	p, err := decodeMap(fields["parameters"])
	if err != nil {
		return nil, nil, err
	}
	return q, p, nil
}

// Parse normalizes a raw inbound request body. Failures are *RequestFormatError.
func Parse(raw []byte) (types.RequestPayload, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return types.RequestPayload{}, newFormatError(nominalTask(raw), fmt.Errorf("%w: %v", errInvalidJSON, err))
	}
	task, ok := types.ParseTaskType(env.TaskType)
	if !ok {
		return types.RequestPayload{}, newFormatError(types.TaskTextGeneration, fmt.Errorf("unsupported task_type %q", env.TaskType))
	}

	s := discriminate(task, env)
	query, params, err := s.decode()
	if err != nil {
		return types.RequestPayload{}, newFormatError(task, err)
	}
	if task == types.TaskConversational {
		delete(params, AddGenerationPromptKey)
	}
	return types.RequestPayload{
		Query:          query,
		Params:         params,
		TaskType:       task,
		IsLegacyFormat: s.legacy(),
	}, nil
}

// discriminate picks the dialect. Task aliasing has already happened, so a
// chat request carrying "input_string" always lands on the legacy branch.
func discriminate(task types.TaskType, env envelope) shape {
	if task == types.TaskTextGeneration && !hasInputString(env.InputData) {
		return newShape{input: env.InputData, params: env.Params}
	}
	return legacyShape{input: env.InputData}
}

// hasInputString reports an "input_string" key on an object, or an
// "input_string" element in a list. Either selects the legacy dialect.
func hasInputString(raw json.RawMessage) bool {
	if fields, ok := objectFields(raw); ok {
		_, ok = fields["input_string"]
		return ok
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err != nil {
		return false
	}
	for _, v := range list {
		if v == "input_string" {
			return true
		}
	}
	return false
}

func objectFields(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	return m, true
}

func decodeList(raw json.RawMessage) ([]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, errQueryNotList
	}
	var out []any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", errQueryNotList, err)
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

// decodeMap treats an absent value as an empty mapping; anything present must
// be a JSON object.
func decodeMap(raw json.RawMessage) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	if _, ok := objectFields(raw); !ok {
		return nil, errParamsNotMap
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", errParamsNotMap, err)
	}
	return out, nil
}

// nominalTask best-effort extracts the task for error examples when the body
// did not decode as an envelope.
func nominalTask(raw []byte) types.TaskType {
	var probe struct {
		TaskType string `json:"task_type"`
	}
	if json.Unmarshal(raw, &probe) != nil {
		return types.TaskTextGeneration
	}
	t, _ := types.ParseTaskType(probe.TaskType)
	return t
}
