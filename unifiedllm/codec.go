package unifiedllm

import jsoniter "github.com/json-iterator/go"

// codec is used for provider payload translation.
var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// toJSONMap converts a JSON-compatible value into a generic map.
func toJSONMap(v any) map[string]any {
	if v == nil {
		return nil
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	data, err := codec.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := codec.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// argsOrEmpty returns raw if it is a JSON object, otherwise "{}".
func argsOrEmpty(raw []byte) []byte {
	if len(raw) == 0 || !codec.Valid(raw) {
		return []byte("{}")
	}
	return raw
}
