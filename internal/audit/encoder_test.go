package audit

import (
	"strings"
	"testing"

	"github.com/passportal/auditledger/internal/canonical"
)

func TestComputeEventHashDeterministic(t *testing.T) {
	fields := canonical.ObjectValue(map[string]canonical.Value{
		"action":        canonical.StringValue("document.read"),
		"resource_type": canonical.StringValue("document"),
		"tenant_id":     canonical.StringValue("tenant-a"),
	})

	h1, err := ComputeEventHash(fields, GenesisHash)
	if err != nil {
		t.Fatalf("ComputeEventHash error: %v", err)
	}
	h2, err := ComputeEventHash(fields, GenesisHash)
	if err != nil {
		t.Fatalf("ComputeEventHash error: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hash not deterministic: %s vs %s", h1, h2)
	}
	if len(h1) != 64 || strings.ToLower(h1) != h1 {
		t.Fatalf("hash is not 64 lowercase hex chars: %q", h1)
	}
}

func TestComputeEventHashDependsOnPrev(t *testing.T) {
	fields := canonical.ObjectValue(map[string]canonical.Value{
		"action":        canonical.StringValue("document.read"),
		"resource_type": canonical.StringValue("document"),
	})

	h1, err := ComputeEventHash(fields, GenesisHash)
	if err != nil {
		t.Fatalf("ComputeEventHash error: %v", err)
	}
	h2, err := ComputeEventHash(fields, h1)
	if err != nil {
		t.Fatalf("ComputeEventHash error: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("hash must change when the previous hash changes")
	}
}

func TestComputeEventHashRejectsBadPrev(t *testing.T) {
	fields := canonical.ObjectValue(map[string]canonical.Value{
		"action": canonical.StringValue("x"),
	})

	if _, err := ComputeEventHash(fields, "abc"); err == nil {
		t.Fatalf("expected error for short prev hash")
	}
	if _, err := ComputeEventHash(fields, strings.Repeat("z", 64)); err == nil {
		t.Fatalf("expected error for non-hex prev hash")
	}
}

// Two logically-equivalent events must hash identically regardless of how an
// absent optional field was expressed.
func TestCanonicalFieldsOmitsEmptyOptionals(t *testing.T) {
	a := &AuditEvent{
		TenantID:     "tenant-a",
		Action:       "login",
		ResourceType: "session",
	}
	b := &AuditEvent{
		TenantID:     "tenant-a",
		Action:       "login",
		ResourceType: "session",
		ResourceID:   "",
		Subject:      "",
		Decision:     "",
		Metadata:     nil,
	}

	ca := string(canonical.Marshal(a.CanonicalFields()))
	cb := string(canonical.Marshal(b.CanonicalFields()))
	if ca != cb {
		t.Fatalf("canonical fields differ:\nA: %s\nB: %s", ca, cb)
	}
	if strings.Contains(ca, "resource_id") || strings.Contains(ca, "subject") || strings.Contains(ca, "decision") || strings.Contains(ca, "metadata") {
		t.Fatalf("empty optional fields leaked into canonical form: %s", ca)
	}
}

func TestCanonicalFieldsPlatformScopeHasNoTenant(t *testing.T) {
	ev := &AuditEvent{
		TenantID:     ScopePlatform,
		Action:       "config.update",
		ResourceType: "settings",
	}
	c := string(canonical.Marshal(ev.CanonicalFields()))
	if strings.Contains(c, "tenant_id") {
		t.Fatalf("platform-scoped event must not carry tenant_id: %s", c)
	}
}

func TestScopeMapping(t *testing.T) {
	if got := Scope(""); got != ScopePlatform {
		t.Fatalf("Scope(\"\") = %q, want %q", got, ScopePlatform)
	}
	if got := Scope("  "); got != ScopePlatform {
		t.Fatalf("Scope(blank) = %q, want %q", got, ScopePlatform)
	}
	if got := Scope("tenant-a"); got != "tenant-a" {
		t.Fatalf("Scope(tenant-a) = %q", got)
	}
}
