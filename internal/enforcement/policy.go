package enforcement

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// MaxPolicySize is the hard cap on policy document size. Oversized
// documents are rejected before parsing.
const MaxPolicySize = 64 * 1024

const (
	// maxPatternSetSize bounds the combined regex source compiled for one
	// tier of one tool.
	maxPatternSetSize = 16 * 1024
	// maxPatternNesting bounds group nesting depth within a pattern.
	maxPatternNesting = 50
)

// PolicyErrorKind separates an unusable policy source from semantically
// invalid content.
type PolicyErrorKind string

const (
	PolicyLoad       PolicyErrorKind = "load"
	PolicyValidation PolicyErrorKind = "validation"
)

// PolicyError reports why a policy could not be loaded or compiled.
type PolicyError struct {
	Kind PolicyErrorKind
	Msg  string
}

func (e *PolicyError) Error() string {
	if e.Kind == PolicyValidation {
		return "invalid policy: " + e.Msg
	}
	return "policy error: " + e.Msg
}

func loadErr(format string, args ...any) *PolicyError {
	return &PolicyError{Kind: PolicyLoad, Msg: fmt.Sprintf(format, args...)}
}

func validationErr(format string, args ...any) *PolicyError {
	return &PolicyError{Kind: PolicyValidation, Msg: fmt.Sprintf(format, args...)}
}

// Raw document structs, 1:1 with the TOML schema. Unknown fields anywhere
// are a hard error.
type policyFile struct {
	Tools map[string]toolConfig `toml:"tools"`
}

type toolConfig struct {
	Enabled bool                    `toml:"enabled"`
	Actions map[string]actionConfig `toml:"actions"`
}

type actionConfig struct {
	Tier     string   `toml:"tier"`
	Patterns []string `toml:"patterns"`
}

// Policy is the compiled, immutable ruleset mapping tool commands to
// tiers. Read-only after construction; safe for concurrent lookups.
type Policy struct {
	tools map[string]*CompiledTool
}

// CompiledTool holds one tool's enabled flag and its tier pattern sets,
// ordered Commit, Act, Observe (highest privilege first).
type CompiledTool struct {
	name    string
	enabled bool
	tiers   []compiledTier
}

type compiledTier struct {
	tier     Tier
	patterns *regexp.Regexp
}

// Parse compiles a policy from a TOML document.
func Parse(text string) (*Policy, error) {
	if len(text) > MaxPolicySize {
		return nil, loadErr("policy document exceeds %d byte limit", MaxPolicySize)
	}

	var file policyFile
	dec := toml.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return nil, loadErr("parse policy: %v", err)
	}

	tools := make(map[string]*CompiledTool, len(file.Tools))
	for name, cfg := range file.Tools {
		compiled, err := compileTool(name, cfg)
		if err != nil {
			return nil, err
		}
		tools[name] = compiled
	}
	return &Policy{tools: tools}, nil
}

// Load parses a policy from a TOML file. The file size is checked via
// metadata before the content is read.
func Load(path string) (*Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, loadErr("cannot read %s: %v", path, err)
	}
	if info.Size() > MaxPolicySize {
		return nil, loadErr("policy file exceeds %d byte limit", MaxPolicySize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, loadErr("cannot read %s: %v", path, err)
	}
	return Parse(string(data))
}

// FindTool returns the compiled entry for an exact tool name.
func (p *Policy) FindTool(name string) (*CompiledTool, bool) {
	tool, ok := p.tools[name]
	return tool, ok
}

// ToolNames returns declared tool names in sorted order.
func (p *Policy) ToolNames() []string {
	names := make([]string, 0, len(p.tools))
	for name := range p.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Name returns the tool name.
func (t *CompiledTool) Name() string { return t.name }

// Enabled reports whether the tool may be used at all.
func (t *CompiledTool) Enabled() bool { return t.enabled }

// Tiers returns the tiers with declared patterns, highest privilege first.
func (t *CompiledTool) Tiers() []Tier {
	tiers := make([]Tier, 0, len(t.tiers))
	for _, ct := range t.tiers {
		tiers = append(tiers, ct.tier)
	}
	return tiers
}

// MatchTier returns the tier of the first pattern set matching the command.
// Tiers are stored in descending privilege order, so a command matching
// several tiers always reports the highest.
func (t *CompiledTool) MatchTier(command string) (Tier, bool) {
	for _, ct := range t.tiers {
		if ct.patterns.MatchString(command) {
			return ct.tier, true
		}
	}
	return 0, false
}

func compileTool(name string, cfg toolConfig) (*CompiledTool, error) {
	// Group actions by tier; same-tier actions share one pattern set.
	byTier := make(map[Tier][]string)
	actionNames := make([]string, 0, len(cfg.Actions))
	for actionName := range cfg.Actions {
		actionNames = append(actionNames, actionName)
	}
	sort.Strings(actionNames)

	for _, actionName := range actionNames {
		action := cfg.Actions[actionName]
		if len(action.Patterns) == 0 {
			return nil, validationErr("tool %q, action %q: patterns must not be empty", name, actionName)
		}
		tier, err := ParseTier(action.Tier)
		if err != nil {
			return nil, loadErr("tool %q, action %q: %v", name, actionName, err)
		}
		byTier[tier] = append(byTier[tier], action.Patterns...)
	}

	var tiers []compiledTier
	for _, tier := range []Tier{TierCommit, TierAct, TierObserve} {
		patterns, ok := byTier[tier]
		if !ok {
			continue
		}
		set, err := compilePatternSet(patterns)
		if err != nil {
			return nil, validationErr("tool %q, tier %q: %v", name, tier, err)
		}
		tiers = append(tiers, compiledTier{tier: tier, patterns: set})
	}

	return &CompiledTool{name: name, enabled: cfg.Enabled, tiers: tiers}, nil
}

// compilePatternSet merges a tier's patterns into a single regexp by
// alternating non-capturing groups. Source size and nesting depth are
// bounded so a hostile policy cannot blow up compilation.
func compilePatternSet(patterns []string) (*regexp.Regexp, error) {
	var sb strings.Builder
	for i, pattern := range patterns {
		if err := checkNesting(pattern); err != nil {
			return nil, err
		}
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString("(?:")
		sb.WriteString(pattern)
		sb.WriteByte(')')
	}
	if sb.Len() > maxPatternSetSize {
		return nil, fmt.Errorf("combined pattern set exceeds %d bytes", maxPatternSetSize)
	}
	return regexp.Compile(sb.String())
}

func checkNesting(pattern string) error {
	depth := 0
	escaped := false
	inClass := false
	for _, r := range pattern {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case inClass:
			if r == ']' {
				inClass = false
			}
		case r == '[':
			inClass = true
		case r == '(':
			depth++
			if depth > maxPatternNesting {
				return fmt.Errorf("pattern %q exceeds nesting depth %d", pattern, maxPatternNesting)
			}
		case r == ')':
			if depth > 0 {
				depth--
			}
		}
	}
	return nil
}
