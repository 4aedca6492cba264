package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSessionInfoJSONStaysFlat(t *testing.T) {
	info := SessionInfo{
		Session:    Session{ID: "s1", CreatedAt: time.Unix(0, 0).UTC()},
		Running:    true,
		EventCount: 3,
	}
	raw, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if m["id"] != "s1" {
		t.Fatalf("id missing or nested: %s", raw)
	}
	if _, ok := m["created_at"]; !ok {
		t.Fatalf("created_at missing: %s", raw)
	}
	if _, ok := m["Session"]; ok {
		t.Fatalf("session row must flatten into the summary: %s", raw)
	}
}
