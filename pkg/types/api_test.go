package types

import (
	"encoding/json"
	"testing"
)

func TestResponseBodies(t *testing.T) {
	cases := []struct {
		name string
		v    any
		want string
	}{
		{"conversational", ConversationalResponse{Output: "hi"}, `{"output":"hi"}`},
		{"format error", FormatErrorResponse{Error: "Expected input format", Exception: "bad"}, `{"error":"Expected input format","exception":"bad"}`},
		{"upstream error omits code", ErrorResponse{Error: "overloaded"}, `{"error":"overloaded"}`},
		{"status before spawn", StatusResponse{State: "starting", ServerAddr: "localhost:8000"},
			`{"state":"starting","server_addr":"localhost:8000","model_path":"","gpu":false,"uptime_seconds":0,"server_time_unix":0}`},
	}
	for _, tc := range cases {
		b, err := json.Marshal(tc.v)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if string(b) != tc.want {
			t.Errorf("%s: got %s want %s", tc.name, b, tc.want)
		}
	}
}
