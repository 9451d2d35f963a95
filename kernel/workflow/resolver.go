package workflow

import "log/slog"

// Resolver resolves rule references against one snapshot, respecting tier
// precedence. Resolution order for a reference found in a definition:
//
//  1. the definition's own rule_definitions (tier = the file's tier),
//  2. the definition's imported rule files, declaration order, first match,
//  3. the tier rule namespaces, most specific first (project > user >
//     bundled).
//
// An unresolvable name is skipped with a warning; it never aborts event
// processing.
type Resolver struct {
	snap *Snapshot
	log  *slog.Logger
}

func NewResolver(snap *Snapshot, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{snap: snap, log: log}
}

var tiersByPrecedence = []Tier{TierProject, TierUser, TierBundled}

// Resolve materializes one rule entry. Inline rules resolve to themselves at
// the definition's tier.
func (r *Resolver) Resolve(def *Definition, entry RuleEntry) (RuleDefinition, bool) {
	if entry.Inline != nil {
		rule := *entry.Inline
		if rule.Tier == "" {
			rule.Tier = def.Tier
		}
		return rule, true
	}
	name := entry.Ref
	if name == "" {
		return RuleDefinition{}, false
	}
	if rule, ok := def.RuleDefinitions[name]; ok {
		return rule, true
	}
	for _, set := range def.imported {
		if rule, ok := set.rules[name]; ok {
			return rule, true
		}
	}
	for _, tier := range tiersByPrecedence {
		if rule, ok := r.snap.tierRules[tier][name]; ok {
			return rule, true
		}
	}
	r.log.Warn("unknown rule reference, skipping",
		"rule", name, "workflow", def.Name, "tier", string(def.Tier))
	return RuleDefinition{}, false
}
