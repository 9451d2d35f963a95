package workflow

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sources names the three tiered definition locations. Bundled ships with
// the binary; user and project directories may be absent.
type Sources struct {
	Bundled    fs.FS
	UserDir    string
	ProjectDir string
}

// Loader resolves workflow and rule files across tiers into one immutable
// snapshot.
type Loader struct {
	sources Sources
	log     *slog.Logger
}

func NewLoader(sources Sources, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{sources: sources, log: log}
}

// Snapshot is one fully resolved definition set. It is read-only after load
// and safely shared across sessions; reloads swap the whole snapshot.
type Snapshot struct {
	workflows map[string]*Definition
	tierRules map[Tier]map[string]RuleDefinition
}

// Workflow returns one definition by name.
func (s *Snapshot) Workflow(name string) (*Definition, bool) {
	def, ok := s.workflows[name]
	return def, ok
}

// WorkflowNames returns the sorted set of known workflow names.
func (s *Snapshot) WorkflowNames() []string {
	names := make([]string, 0, len(s.workflows))
	for name := range s.workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type tierSource struct {
	tier Tier
	fsys fs.FS
}

// Load reads every tier, layering bundled, then user, then project. A
// workflow name defined at a more specific tier replaces the broader one
// whole; rule names resolve through the tier namespaces at request time.
func (l *Loader) Load() (*Snapshot, error) {
	snap := &Snapshot{
		workflows: map[string]*Definition{},
		tierRules: map[Tier]map[string]RuleDefinition{},
	}
	for _, src := range l.tierSources() {
		if src.fsys == nil {
			continue
		}
		if err := l.loadTier(snap, src); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func (l *Loader) tierSources() []tierSource {
	out := []tierSource{{tier: TierBundled, fsys: l.sources.Bundled}}
	for _, dir := range []struct {
		tier Tier
		path string
	}{
		{TierUser, l.sources.UserDir},
		{TierProject, l.sources.ProjectDir},
	} {
		if strings.TrimSpace(dir.path) == "" {
			continue
		}
		if info, err := os.Stat(dir.path); err != nil || !info.IsDir() {
			continue
		}
		out = append(out, tierSource{tier: dir.tier, fsys: os.DirFS(dir.path)})
	}
	return out
}

func (l *Loader) loadTier(snap *Snapshot, src tierSource) error {
	entries, err := fs.ReadDir(src.fsys, ".")
	if err != nil {
		return fmt.Errorf("workflow: read %s tier: %w", src.tier, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		if err := l.loadFile(snap, src, entry.Name()); err != nil {
			return err
		}
	}
	return nil
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func (l *Loader) loadFile(snap *Snapshot, src tierSource, name string) error {
	raw, err := fs.ReadFile(src.fsys, name)
	if err != nil {
		return fmt.Errorf("workflow: read %s/%s: %w", src.tier, name, err)
	}
	def := &Definition{}
	if err := yaml.Unmarshal(raw, def); err != nil {
		return fmt.Errorf("workflow: parse %s/%s: %w", src.tier, name, err)
	}
	def.Tier = src.tier

	visiting := map[string]bool{fileKey(src.tier, name): true}
	imported, err := l.resolveImports(src, path.Dir(name), def.Imports, visiting, []string{name})
	if err != nil {
		return err
	}
	def.imported = imported

	if err := compileDefinition(def); err != nil {
		return fmt.Errorf("workflow: %s/%s: %w", src.tier, name, err)
	}

	if def.Name == "" {
		// Standalone rule file: its rules join the tier namespace, imports
		// included (below the file's own rules).
		l.mergeTierRules(snap, src.tier, def)
		return nil
	}
	snap.workflows[def.Name] = def
	return nil
}

func (l *Loader) mergeTierRules(snap *Snapshot, tier Tier, def *Definition) {
	bucket := snap.tierRules[tier]
	if bucket == nil {
		bucket = map[string]RuleDefinition{}
		snap.tierRules[tier] = bucket
	}
	for _, set := range def.imported {
		for name, rule := range set.rules {
			if _, exists := bucket[name]; !exists {
				bucket[name] = rule
			}
		}
	}
	for name, rule := range def.RuleDefinitions {
		rule.Name = name
		rule.Tier = tier
		bucket[name] = rule
	}
}

// resolveImports flattens one import list depth-first in declaration order.
// The visiting set carries the chain of file identities currently being
// resolved; revisiting one is a circular import and fails the load.
func (l *Loader) resolveImports(src tierSource, baseDir string, imports []string, visiting map[string]bool, chain []string) ([]ruleSet, error) {
	var out []ruleSet
	for _, ref := range imports {
		target := path.Join(baseDir, ref)
		key := fileKey(src.tier, target)
		if visiting[key] {
			return nil, fmt.Errorf("workflow: circular import: %s -> %s", strings.Join(chain, " -> "), target)
		}
		raw, err := fs.ReadFile(src.fsys, target)
		if err != nil {
			return nil, fmt.Errorf("workflow: import %q from %s: %w", ref, strings.Join(chain, " -> "), err)
		}
		imported := &Definition{}
		if err := yaml.Unmarshal(raw, imported); err != nil {
			return nil, fmt.Errorf("workflow: parse import %s/%s: %w", src.tier, target, err)
		}

		visiting[key] = true
		nested, err := l.resolveImports(src, path.Dir(target), imported.Imports, visiting, append(chain, target))
		if err != nil {
			return nil, err
		}
		delete(visiting, key)

		set := ruleSet{path: target, rules: map[string]RuleDefinition{}}
		for name, rule := range imported.RuleDefinitions {
			rule.Name = name
			rule.Tier = src.tier
			if err := rule.Condition.Compile(); err != nil {
				return nil, fmt.Errorf("workflow: import %s/%s rule %q: %w", src.tier, target, name, err)
			}
			set.rules[name] = rule
		}
		// The importing file's view: its own imports first, then whatever
		// those files imported below them.
		out = append(out, set)
		out = append(out, nested...)
	}
	return out, nil
}

func fileKey(tier Tier, name string) string {
	return string(tier) + ":" + path.Clean(name)
}

func compileDefinition(def *Definition) error {
	if def.Type == "" {
		def.Type = TypeStep
	}
	if def.Type != TypeStep && def.Type != TypePipeline {
		return fmt.Errorf("unsupported workflow type %q", def.Type)
	}
	for name, rule := range def.RuleDefinitions {
		rule.Name = name
		rule.Tier = def.Tier
		if err := rule.Condition.Compile(); err != nil {
			return fmt.Errorf("rule %q: %w", name, err)
		}
		def.RuleDefinitions[name] = rule
	}
	for i := range def.Steps {
		step := &def.Steps[i]
		if step.Name == "" {
			return fmt.Errorf("step %d has no name", i)
		}
		for j := range step.Transitions {
			tr := &step.Transitions[j]
			if tr.To == "" {
				return fmt.Errorf("step %q transition %d has no target", step.Name, j)
			}
			if _, ok := def.StepNamed(tr.To); !ok {
				return fmt.Errorf("step %q transitions to unknown step %q", step.Name, tr.To)
			}
			if err := tr.When.Compile(); err != nil {
				return fmt.Errorf("step %q transition to %q: %w", step.Name, tr.To, err)
			}
		}
		if err := compileEntries(step.ToolRules); err != nil {
			return fmt.Errorf("step %q: %w", step.Name, err)
		}
	}
	for key, entries := range def.Triggers {
		if err := compileEntries(entries); err != nil {
			return fmt.Errorf("trigger %q: %w", key, err)
		}
	}
	if err := compileEntries(def.ToolRules); err != nil {
		return err
	}
	return compileEntries(def.CheckRules)
}

func compileEntries(entries []RuleEntry) error {
	for i := range entries {
		inline := entries[i].Inline
		if inline == nil {
			continue
		}
		if err := inline.Condition.Compile(); err != nil {
			name := inline.Name
			if name == "" {
				name = fmt.Sprintf("inline[%d]", i)
			}
			return fmt.Errorf("rule %q: %w", name, err)
		}
	}
	return nil
}
