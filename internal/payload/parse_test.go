package payload

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"scoringd/pkg/types"
)

func TestParse_NewDialect(t *testing.T) {
	p, err := Parse([]byte(`{"input_data": ["hi"], "params": {}, "task_type":"text-generation"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(p.Query, []any{"hi"}) {
		t.Fatalf("query=%v", p.Query)
	}
	if len(p.Params) != 0 || p.Params == nil {
		t.Fatalf("params=%v", p.Params)
	}
	if p.IsLegacyFormat {
		t.Fatalf("expected new dialect")
	}
	if p.TaskType != types.TaskTextGeneration {
		t.Fatalf("task=%s", p.TaskType)
	}
}

func TestParse_NewDialectDefaultsParams(t *testing.T) {
	p, err := Parse([]byte(`{"input_data": ["a", "b"]}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Params == nil || len(p.Params) != 0 {
		t.Fatalf("expected empty params, got %v", p.Params)
	}
	if len(p.Query) != 2 || p.TaskType != types.TaskTextGeneration {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestParse_LegacyChatCompletion(t *testing.T) {
	raw := `{"input_data": {"input_string": ["hi"], "parameters": {"temperature":0.2}}, "task_type":"chat-completion"}`
	p, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(p.Query, []any{"hi"}) {
		t.Fatalf("query=%v", p.Query)
	}
	if !reflect.DeepEqual(p.Params, map[string]any{"temperature": 0.2}) {
		t.Fatalf("params=%v", p.Params)
	}
	if !p.IsLegacyFormat {
		t.Fatalf("expected legacy dialect")
	}
	if p.TaskType != types.TaskConversational {
		t.Fatalf("task=%s", p.TaskType)
	}
}

func TestParse_LegacyTextGeneration(t *testing.T) {
	raw := `{"input_data": {"input_string": ["x"], "parameters": {"max_new_tokens": 8}}, "task_type":"text-generation"}`
	p, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !p.IsLegacyFormat || p.TaskType != types.TaskTextGeneration {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if p.Params["max_new_tokens"] != float64(8) {
		t.Fatalf("params=%v", p.Params)
	}
}

func TestParse_ConversationalStripsAddGenerationPrompt(t *testing.T) {
	raw := `{"input_data": {"input_string": [{"role":"user","content":"hi"}], "parameters": {"add_generation_prompt": false, "top_p": 0.9}}, "task_type":"conversational"}`
	p, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := p.Params[AddGenerationPromptKey]; ok {
		t.Fatalf("add_generation_prompt should be removed: %v", p.Params)
	}
	if p.Params["top_p"] != 0.9 {
		t.Fatalf("other params must survive: %v", p.Params)
	}
	msg, ok := p.Query[0].(map[string]any)
	if !ok || msg["role"] != "user" || msg["content"] != "hi" {
		t.Fatalf("query=%v", p.Query)
	}
}

func TestParse_TextGenerationKeepsAddGenerationPrompt(t *testing.T) {
	p, err := Parse([]byte(`{"input_data": ["hi"], "params": {"add_generation_prompt": true}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := p.Params[AddGenerationPromptKey]; !ok {
		t.Fatalf("text generation must not strip params: %v", p.Params)
	}
}

func TestParse_FormatErrors(t *testing.T) {
	cases := map[string]struct {
		raw     string
		example string
		exc     string
	}{
		"missing input_data":       {`{"task_type":"text-generation"}`, textInputExample, "query is not a list"},
		"scalar query":             {`{"input_data": "hi"}`, textInputExample, "query is not a list"},
		"params not map":           {`{"input_data": ["hi"], "params": [1]}`, textInputExample, "parameters is not a dict"},
		"params null":              {`{"input_data": ["hi"], "params": null}`, textInputExample, "parameters is not a dict"},
		"chat list input":          {`{"input_data": ["hi"], "task_type":"chat-completion"}`, chatInputExample, "invalid input data"},
		"chat no input_string":     {`{"input_data": {"parameters": {}}, "task_type":"chat-completion"}`, chatInputExample, "input_string"},
		"legacy query scalar":      {`{"input_data": {"input_string": "hi"}, "task_type":"chat-completion"}`, chatInputExample, "query is not a list"},
		"legacy params list":       {`{"input_data": {"input_string": ["hi"], "parameters": []}, "task_type":"chat-completion"}`, chatInputExample, "parameters is not a dict"},
		"list naming input_string": {`{"input_data": ["input_string", "hi"]}`, textInputExample, "invalid input data"},
		"unknown task":             {`{"input_data": ["hi"], "task_type":"image-to-poem"}`, textInputExample, "unsupported task_type"},
		"not json":                 {`not-json`, textInputExample, "not a JSON object"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(tc.raw))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !IsRequestFormat(err) {
				t.Fatalf("expected RequestFormatError, got %T", err)
			}
			// The message must round-trip as JSON and embed the literal example.
			var body types.FormatErrorResponse
			if jerr := json.Unmarshal([]byte(err.Error()), &body); jerr != nil {
				t.Fatalf("message is not JSON: %v: %s", jerr, err.Error())
			}
			if !strings.Contains(body.Error, tc.example) {
				t.Fatalf("error %q does not contain example %q", body.Error, tc.example)
			}
			if !strings.Contains(body.Exception, tc.exc) {
				t.Fatalf("exception %q does not contain %q", body.Exception, tc.exc)
			}
		})
	}
}
