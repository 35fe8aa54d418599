package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEmbeddedRender(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := c.Render("ack.RoomNotFound", map[string]string{"RoomID": "AB12CD", "Detail": ""})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "Room AB12CD does not exist." {
		t.Fatalf("got %q", got)
	}
	if _, err := c.Render("ack.RoomNotFound", map[string]string{}); err == nil {
		t.Fatalf("missing key must fail")
	}
	if got := c.Text("ack.Nope", nil, "fallback"); got != "fallback" {
		t.Fatalf("Text fallback = %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "10-ack.yaml"), []byte("ack:\n  NotYourTurn: \"Wait for {{.Detail}}\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := c.Text("ack.NotYourTurn", map[string]string{"Detail": "white"}, "")
	if got != "Wait for white" {
		t.Fatalf("override not applied: %q", got)
	}
	if !c.Has("ack.RoomFull") {
		t.Fatalf("embedded keys must survive overrides")
	}
}

func TestOverrideDuplicateKeys(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("ack:\n  Internal: x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	_, err := New(dir)
	if err == nil || !strings.Contains(err.Error(), "duplicate override key") {
		t.Fatalf("err = %v", err)
	}
}

func TestRejectsNonStringLeaves(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("ack:\n  Internal: 42\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("expected error for numeric leaf")
	}
}
