package template

import (
	"strings"
	"testing"
)

const loginResponse = `{
	"auth": {"token": "abc123", "expires": 3600},
	"team": {"id": 42, "name": "red", "active": true},
	"members": [{"name": "ann"}, {"name": "bob"}, {"name": "cy"}]
}`

func TestExtract(t *testing.T) {
	rules := map[string]string{
		"token":  "$.auth.token",
		"teamId": "$.team.id",
		"active": "$.team.active",
		"first":  "$.members[0].name",
	}

	result, err := Extract([]byte(loginResponse), rules)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["token"] != "abc123" {
		t.Errorf("token: got %v", result["token"])
	}
	if result["teamId"] != float64(42) {
		t.Errorf("teamId: got %v", result["teamId"])
	}
	if result["active"] != true {
		t.Errorf("active: got %v", result["active"])
	}
	if result["first"] != "ann" {
		t.Errorf("first: got %v", result["first"])
	}
}

func TestExtract_Wildcard(t *testing.T) {
	result, err := Extract([]byte(loginResponse), map[string]string{"names": "$.members[*].name"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names, ok := result["names"].([]any)
	if !ok || len(names) != 3 {
		t.Fatalf("expected 3 names, got %#v", result["names"])
	}
}

func TestExtract_Errors(t *testing.T) {
	_, err := Extract([]byte(loginResponse), map[string]string{
		"missing1": "$.nope",
		"missing2": "$.auth.nope",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "missing1") || !strings.Contains(err.Error(), "missing2") {
		t.Errorf("expected both variables in error, got: %v", err)
	}

	_, err = Extract([]byte("<html>"), map[string]string{"x": "$.x"})
	if err == nil || !strings.Contains(err.Error(), "invalid JSON") {
		t.Errorf("expected invalid JSON error, got %v", err)
	}

	if result, err := Extract([]byte(loginResponse), nil); result != nil || err != nil {
		t.Errorf("empty rules: got %v, %v", result, err)
	}
}

func TestLookup(t *testing.T) {
	v, ok := Lookup([]byte(loginResponse), "$.auth.token")
	if !ok || v.String() != "abc123" {
		t.Errorf("got %v %v", v, ok)
	}
	if _, ok := Lookup([]byte(loginResponse), "$.auth.refresh"); ok {
		t.Error("expected missing path")
	}
}

func TestConvertJSONPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"$.foo.bar", "foo.bar"},
		{"$foo.bar", "foo.bar"},
		{"foo.bar", "foo.bar"},
		{"$.items[10].id", "items.10.id"},
		{"$.data[*].name", "data.#.name"},
		{"$", ""},
	}

	for _, tc := range tests {
		if got := convertJSONPath(tc.input); got != tc.expected {
			t.Errorf("convertJSONPath(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}
