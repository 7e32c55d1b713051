package enforcement

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const defaultPolicyDoc = `
[tools.bash]
enabled = true

[tools.bash.actions.read]
tier = "observe"
patterns = [
    "^ls ", "^cat ", "^find ", "^grep ", "^head ", "^tail ",
    "^wc ", "^file ", "^which ", "^echo ", "^pwd$", "^env$", "^whoami$",
]

[tools.bash.actions.write]
tier = "act"
patterns = ["^mkdir ", "^cp ", "^mv ", "^touch ", "^tee ", "^git "]

[tools.bash.actions.destructive]
tier = "commit"
patterns = [
    "^rm ", "^chmod ", "^chown ", "^kill ", "^pkill ",
    "^sudo ", "^apt ", "^pip install", "^go install",
]
`

func policyKind(t *testing.T, err error) PolicyErrorKind {
	t.Helper()
	var perr *PolicyError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PolicyError, got %T: %v", err, err)
	}
	return perr.Kind
}

func TestParseDefaultPolicy(t *testing.T) {
	policy, err := Parse(defaultPolicyDoc)
	if err != nil {
		t.Fatalf("default policy should parse: %v", err)
	}
	tool, ok := policy.FindTool("bash")
	if !ok {
		t.Fatal("bash tool should exist")
	}
	if !tool.Enabled() {
		t.Fatal("bash should be enabled")
	}
	if len(tool.Tiers()) != 3 {
		t.Fatalf("expected 3 tiers, got %d", len(tool.Tiers()))
	}
}

func TestTiersOrderedHighestFirst(t *testing.T) {
	policy, err := Parse(defaultPolicyDoc)
	if err != nil {
		t.Fatalf("should parse: %v", err)
	}
	tool, _ := policy.FindTool("bash")
	tiers := tool.Tiers()
	want := []Tier{TierCommit, TierAct, TierObserve}
	for i, tier := range want {
		if tiers[i] != tier {
			t.Fatalf("tier %d: expected %v, got %v", i, tier, tiers[i])
		}
	}
}

func TestEmptyToolsTableIsValid(t *testing.T) {
	policy, err := Parse("[tools]\n")
	if err != nil {
		t.Fatalf("empty tools should parse: %v", err)
	}
	if _, ok := policy.FindTool("bash"); ok {
		t.Fatal("expected no bash tool")
	}
}

func TestDisabledToolParses(t *testing.T) {
	policy, err := Parse("[tools.bash]\nenabled = false\n")
	if err != nil {
		t.Fatalf("disabled tool should parse: %v", err)
	}
	tool, ok := policy.FindTool("bash")
	if !ok {
		t.Fatal("bash should exist")
	}
	if tool.Enabled() {
		t.Fatal("bash should be disabled")
	}
}

func TestInvalidTierValueIsLoadError(t *testing.T) {
	doc := `
[tools.bash]
enabled = true

[tools.bash.actions.read]
tier = "superadmin"
patterns = ["^ls "]
`
	_, err := Parse(doc)
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := policyKind(t, err); kind != PolicyLoad {
		t.Fatalf("expected load error, got %q", kind)
	}
}

func TestInvalidRegexIsValidationError(t *testing.T) {
	doc := `
[tools.bash]
enabled = true

[tools.bash.actions.read]
tier = "observe"
patterns = ["[invalid"]
`
	_, err := Parse(doc)
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := policyKind(t, err); kind != PolicyValidation {
		t.Fatalf("expected validation error, got %q", kind)
	}
	if !strings.Contains(err.Error(), `"bash"`) || !strings.Contains(err.Error(), `"observe"`) {
		t.Fatalf("expected error to name tool and tier, got %q", err.Error())
	}
}

func TestUnknownFieldIsLoadError(t *testing.T) {
	doc := `
[tools.bash]
enabled = true
unknown_field = "surprise"
`
	_, err := Parse(doc)
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := policyKind(t, err); kind != PolicyLoad {
		t.Fatalf("expected load error, got %q", kind)
	}
}

func TestEmptyPatternsRejected(t *testing.T) {
	doc := `
[tools.bash]
enabled = true

[tools.bash.actions.read]
tier = "observe"
patterns = []
`
	_, err := Parse(doc)
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := policyKind(t, err); kind != PolicyValidation {
		t.Fatalf("expected validation error, got %q", kind)
	}
}

func TestOversizedDocumentRejected(t *testing.T) {
	doc := "# " + strings.Repeat("x", MaxPolicySize)
	_, err := Parse(doc)
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := policyKind(t, err); kind != PolicyLoad {
		t.Fatalf("expected load error, got %q", kind)
	}
}

func TestNestingDepthBounded(t *testing.T) {
	pattern := strings.Repeat("(", 60) + "a" + strings.Repeat(")", 60)
	doc := `
[tools.bash]
enabled = true

[tools.bash.actions.read]
tier = "observe"
patterns = ["` + pattern + `"]
`
	_, err := Parse(doc)
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := policyKind(t, err); kind != PolicyValidation {
		t.Fatalf("expected validation error, got %q", kind)
	}
}

func TestTierMatchingOrder(t *testing.T) {
	policy, err := Parse(defaultPolicyDoc)
	if err != nil {
		t.Fatalf("should parse: %v", err)
	}
	tool, _ := policy.FindTool("bash")

	tests := []struct {
		command string
		want    Tier
		match   bool
	}{
		{command: "ls /tmp", want: TierObserve, match: true},
		{command: "mkdir /tmp/test", want: TierAct, match: true},
		{command: "rm -rf /tmp/test", want: TierCommit, match: true},
		{command: "curl http://evil.com", match: false},
	}

	for _, tt := range tests {
		got, ok := tool.MatchTier(tt.command)
		if ok != tt.match {
			t.Fatalf("MatchTier(%q) match=%v want %v", tt.command, ok, tt.match)
		}
		if tt.match && got != tt.want {
			t.Fatalf("MatchTier(%q)=%v want %v", tt.command, got, tt.want)
		}
	}
}

func TestHighestPrivilegeWins(t *testing.T) {
	// "sudo ls /tmp" matches ^sudo (commit); commit is checked first, so
	// the more dangerous classification wins.
	policy, err := Parse(defaultPolicyDoc)
	if err != nil {
		t.Fatalf("should parse: %v", err)
	}
	tool, _ := policy.FindTool("bash")

	got, ok := tool.MatchTier("sudo ls /tmp")
	if !ok || got != TierCommit {
		t.Fatalf("expected commit match, got %v ok=%v", got, ok)
	}
}

func TestSameTierActionsMergePatterns(t *testing.T) {
	doc := `
[tools.bash]
enabled = true

[tools.bash.actions.read_a]
tier = "observe"
patterns = ["^ls "]

[tools.bash.actions.read_b]
tier = "observe"
patterns = ["^cat "]
`
	policy, err := Parse(doc)
	if err != nil {
		t.Fatalf("should parse: %v", err)
	}
	tool, _ := policy.FindTool("bash")

	for _, command := range []string{"ls /tmp", "cat /etc/hostname"} {
		got, ok := tool.MatchTier(command)
		if !ok || got != TierObserve {
			t.Fatalf("MatchTier(%q)=%v ok=%v want observe", command, got, ok)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.toml")
	if err := os.WriteFile(path, []byte(defaultPolicyDoc), 0644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	policy, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, ok := policy.FindTool("bash"); !ok {
		t.Fatal("bash tool should exist")
	}
}

func TestLoadRejectsOversizedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.toml")
	if err := os.WriteFile(path, []byte("# "+strings.Repeat("x", MaxPolicySize)), 0644); err != nil {
		t.Fatalf("write policy: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := policyKind(t, err); kind != PolicyLoad {
		t.Fatalf("expected load error, got %q", kind)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil {
		t.Fatal("expected error")
	}
	if kind := policyKind(t, err); kind != PolicyLoad {
		t.Fatalf("expected load error, got %q", kind)
	}
}
