package llamaclient

import "encoding/json"

// Side-channel keys removed from params before forwarding.
const (
	batchSizeKey      = "_batch_size"
	returnFullTextKey = "return_full_text"
)

// sideChannel holds parameters that steer the adapter but never reach the
// backing server.
type sideChannel struct {
	batchSize      int
	returnFullText bool
}

// splitParams copies params and extracts the side-channel keys. The caller's
// map is left untouched.
func splitParams(params map[string]any) (map[string]any, sideChannel) {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	sc := sideChannel{batchSize: 1, returnFullText: true}
	if v, ok := out[batchSizeKey]; ok {
		if n, ok := asInt(v); ok && n > 0 {
			sc.batchSize = n
		}
		delete(out, batchSizeKey)
	}
	if v, ok := out[returnFullTextKey]; ok {
		if b, ok := v.(bool); ok {
			sc.returnFullText = b
		}
		delete(out, returnFullTextKey)
	}
	return out, sc
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}
