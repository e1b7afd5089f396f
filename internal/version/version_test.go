package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	v := Get()
	if v == "" {
		t.Fatal("Get returned an empty version")
	}
	if strings.TrimSpace(v) != v {
		t.Errorf("Get = %q, want trimmed", v)
	}
}

func TestString(t *testing.T) {
	old := Commit
	defer func() { Commit = old }()

	Commit = "abc123"
	s := String()
	if !strings.HasPrefix(s, "conduct "+Get()+" (abc123)") {
		t.Errorf("String = %q", s)
	}
}
