package adapter

import (
	"context"
	"testing"

	"github.com/sessionkit/conductor/internal/adapter/claudecode"
	"github.com/sessionkit/conductor/internal/adapter/codex"
	"github.com/sessionkit/conductor/internal/adapter/gemini"
	"github.com/sessionkit/conductor/kernel/hookevent"
	"github.com/sessionkit/conductor/kernel/session/inmemory"
)

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(claudecode.New(), gemini.New(), codex.New())
	if err != nil {
		t.Fatal(err)
	}
	for _, source := range []hookevent.Source{
		hookevent.SourceClaudeCode, hookevent.SourceGeminiCLI, hookevent.SourceCodexCLI,
	} {
		if _, ok := r.For(source); !ok {
			t.Fatalf("expected adapter for %q", source)
		}
	}
	if _, ok := r.For(hookevent.Source("cursor")); ok {
		t.Fatal("expected no adapter for unknown source")
	}
	if _, err := NewRegistry(claudecode.New(), claudecode.New()); err == nil {
		t.Fatal("expected duplicate source registration to fail")
	}
}

func TestSessionResolver_CreatesAndReuses(t *testing.T) {
	store := inmemory.New()
	resolver := NewSessionResolver(store, nil)
	ctx := context.Background()

	ev := hookevent.Event{
		Type:      hookevent.EventSessionStart,
		SessionID: "native-1",
		Source:    hookevent.SourceClaudeCode,
	}
	if err := resolver.Resolve(ctx, &ev); err != nil {
		t.Fatal(err)
	}
	platformID := ev.PlatformSessionID()
	if platformID == "" || platformID == "native-1" {
		t.Fatalf("expected fresh platform id, got %q", platformID)
	}

	// The same native id resolves to the same platform session.
	again := hookevent.Event{
		Type:      hookevent.EventBeforeTool,
		SessionID: "native-1",
		Source:    hookevent.SourceClaudeCode,
	}
	if err := resolver.Resolve(ctx, &again); err != nil {
		t.Fatal(err)
	}
	if again.PlatformSessionID() != platformID {
		t.Fatalf("expected stable platform id %q, got %q", platformID, again.PlatformSessionID())
	}

	// The same native id on a different CLI is a different session.
	other := hookevent.Event{
		Type:      hookevent.EventSessionStart,
		SessionID: "native-1",
		Source:    hookevent.SourceGeminiCLI,
	}
	if err := resolver.Resolve(ctx, &other); err != nil {
		t.Fatal(err)
	}
	if other.PlatformSessionID() == platformID {
		t.Fatal("expected source-scoped session identity")
	}
}

func TestSessionResolver_NoStoreFallsBackToNativeID(t *testing.T) {
	resolver := NewSessionResolver(nil, nil)
	ev := hookevent.Event{Type: hookevent.EventUserPrompt, SessionID: "native-9", Source: hookevent.SourceCodexCLI}
	if err := resolver.Resolve(context.Background(), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.PlatformSessionID() != "native-9" {
		t.Fatalf("expected native id passthrough, got %q", ev.PlatformSessionID())
	}
}

func TestSessionResolver_MissingNativeID(t *testing.T) {
	resolver := NewSessionResolver(nil, nil)
	ev := hookevent.Event{Type: hookevent.EventUserPrompt}
	if err := resolver.Resolve(context.Background(), &ev); err == nil {
		t.Fatal("expected error without a native session id")
	}
}
