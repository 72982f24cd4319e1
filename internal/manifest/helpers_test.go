package manifest_test

import (
	"encoding/json"
	"testing"
)

func replaceJSONField(t *testing.T, body, key, raw string) string {
	t.Helper()
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		t.Fatalf("decode descriptor: %v", err)
	}
	doc[key] = json.RawMessage(raw)
	out, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("encode descriptor: %v", err)
	}
	return string(out)
}
