package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefineTag_Named(t *testing.T) {
	a := DefineTag[string]("chat:message")
	b := DefineTag[string]("chat:message")

	if a != b {
		t.Errorf("DefineTag(%q) twice = %v, %v; want equal", "chat:message", a, b)
	}
	if a.Name() != "chat:message" {
		t.Errorf("Name() = %q, want chat:message", a.Name())
	}
}

func TestDefineTag_Anonymous(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		tag := DefineTag[int]()
		if len(tag.Name()) != 16 {
			t.Fatalf("generated name %q has length %d, want 16", tag.Name(), len(tag.Name()))
		}
		for _, r := range tag.Name() {
			if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
				t.Fatalf("generated name %q is not alphanumeric", tag.Name())
			}
		}
		if seen[tag.Name()] {
			t.Fatalf("generated name %q repeated", tag.Name())
		}
		seen[tag.Name()] = true
	}
}

func TestDefineTag_EmptyNamePanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("DefineTag(\"\") should panic")
		}
	}()
	DefineTag[int]("")
}

func TestDefineInvokeBundle_Deterministic(t *testing.T) {
	a := DefineInvokeBundle[string, int]("x")
	b := DefineInvokeBundle[string, int]("x")

	want := []string{"x-send", "x-send-error", "x-receive", "x-receive-error", "x-receive-stream-end"}
	if diff := cmp.Diff(want, a.Tags()); diff != "" {
		t.Errorf("Tags() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(a.Tags(), b.Tags()); diff != "" {
		t.Errorf("bundles from the same name differ (-a +b):\n%s", diff)
	}
	if a.Base() != "x" {
		t.Errorf("Base() = %q, want x", a.Base())
	}
}

func TestDefineInvokeBundle_Anonymous(t *testing.T) {
	a := DefineInvokeBundle[string, int]()
	b := DefineInvokeBundle[string, int]()

	if a.Base() == b.Base() {
		t.Errorf("anonymous bundles share base %q", a.Base())
	}
	if a.SendEvent.Name() != a.Base()+"-send" {
		t.Errorf("SendEvent = %q, want %q", a.SendEvent.Name(), a.Base()+"-send")
	}
}
