package vision

import "testing"

func TestDecodeModelJSONDirect(t *testing.T) {
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeModelJSON(`{"ok":true}`, &parsed); err != nil {
		t.Fatalf("DecodeModelJSON returned error: %v", err)
	}
	if !parsed.OK {
		t.Fatal("expected ok true")
	}
}

func TestDecodeModelJSONStripsFencesAndProse(t *testing.T) {
	cases := []string{
		"```json\n{\"ok\":true}\n```",
		"```\n{\"ok\":true}\n```",
		"Here is the result: {\"ok\":true} Hope that helps.",
	}
	for _, content := range cases {
		var parsed struct {
			OK bool `json:"ok"`
		}
		if err := DecodeModelJSON(content, &parsed); err != nil {
			t.Fatalf("DecodeModelJSON(%q) returned error: %v", content, err)
		}
		if !parsed.OK {
			t.Fatalf("expected ok true for %q", content)
		}
	}
}

func TestDecodeModelJSONEmptyPayload(t *testing.T) {
	var parsed any
	if err := DecodeModelJSON("   ", &parsed); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
