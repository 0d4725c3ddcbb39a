// ABOUTME: The agent roster: built-in agent definitions plus TOML overrides.
// ABOUTME: Resolves requested agent names for a workflow run with a hard cap.

package agent

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// Definition is one roster entry as found in a TOML roster file.
type Definition struct {
	Name        string `toml:"name"`
	Model       string `toml:"model"`
	Role        string `toml:"role"`
	Description string `toml:"description"`
	Color       string `toml:"color"`
	Emoji       string `toml:"emoji"`
}

// rosterFile is the top-level TOML document.
type rosterFile struct {
	Agents []Definition `toml:"agent"`
}

// builtinDefinitions is the default roster. Entries can be overridden or
// extended by a roster file; they never change at runtime.
var builtinDefinitions = []Definition{
	{Name: "Mike", Model: "agent-visionnaire", Role: "visionary", Description: "Project coordination and vision", Color: "#FF6B6B", Emoji: "🎯"},
	{Name: "Bob", Model: "agent-architecte", Role: "architect", Description: "Technical architecture expert", Color: "#FFEAA7", Emoji: "🏗️"},
	{Name: "FrontEngineer", Model: "agent-frontend-engineer", Role: "frontend", Description: "React/JavaScript developer", Color: "#4ECDC4", Emoji: "⚡"},
	{Name: "BackEngineer", Model: "agent-backend-engineer", Role: "backend", Description: "API and service developer", Color: "#45B7D1", Emoji: "🔧"},
	{Name: "UIDesigner", Model: "agent-designer-ui-ux", Role: "designer", Description: "Interface design expert", Color: "#96CEB4", Emoji: "🎨"},
	{Name: "SEOExpert", Model: "agent-seo-content-expert", Role: "seo", Description: "SEO and content specialist", Color: "#F8B500", Emoji: "📝"},
	{Name: "DBMaster", Model: "agent-database-specialist", Role: "database", Description: "Database expert", Color: "#A29BFE", Emoji: "🗄️"},
	{Name: "DevOpsGuy", Model: "agent-deployer-devops", Role: "devops", Description: "Deployment specialist", Color: "#DDA0DD", Emoji: "🚀"},
	{Name: "TheCritique", Model: "agent-critique", Role: "critic", Description: "Quality and security expert", Color: "#FF7675", Emoji: "🔍"},
	{Name: "TheOptimizer", Model: "agent-optimiseur", Role: "optimizer", Description: "Code optimization expert", Color: "#6C5CE7", Emoji: "⚡"},
	{Name: "TranslatorBot", Model: "agent-translator", Role: "translator", Description: "Translation expert", Color: "#FD79A8", Emoji: "🌐"},
}

// Roster holds the configured agents, keyed by name and kept in definition
// order. Immutable after construction.
type Roster struct {
	agents map[string]*Agent
	order  []string
}

// NewRoster builds the roster from the built-in definitions plus an optional
// TOML roster file. File entries with a name matching a built-in replace it;
// other entries are appended. An unknown role anywhere fails the load.
func NewRoster(rosterPath string, backend Backend, opts Options, logger *slog.Logger) (*Roster, error) {
	defs := append([]Definition(nil), builtinDefinitions...)

	if rosterPath != "" {
		extra, err := loadRosterFile(rosterPath)
		if err != nil {
			return nil, err
		}
		defs = mergeDefinitions(defs, extra)
	}

	r := &Roster{agents: make(map[string]*Agent, len(defs))}
	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("roster entry with empty name")
		}
		if def.Model == "" {
			return nil, fmt.Errorf("roster entry %q has no model", def.Name)
		}
		role, err := ParseRole(def.Role)
		if err != nil {
			return nil, fmt.Errorf("roster entry %q: %w", def.Name, err)
		}
		r.agents[def.Name] = New(def.Name, def.Model, role, def.Description, def.Color, def.Emoji, backend, opts, logger)
		r.order = append(r.order, def.Name)
	}

	return r, nil
}

// loadRosterFile parses a TOML roster file.
func loadRosterFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roster file: %w", err)
	}

	var rf rosterFile
	if err := toml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing roster file: %w", err)
	}

	return rf.Agents, nil
}

// mergeDefinitions overlays extra entries on the base roster: same-name
// entries replace, new names append.
func mergeDefinitions(base, extra []Definition) []Definition {
	index := make(map[string]int, len(base))
	for i, d := range base {
		index[d.Name] = i
	}

	for _, d := range extra {
		if i, ok := index[d.Name]; ok {
			base[i] = d
			continue
		}
		index[d.Name] = len(base)
		base = append(base, d)
	}
	return base
}

// Get returns the named agent.
func (r *Roster) Get(name string) (*Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// Names returns agent names in roster order.
func (r *Roster) Names() []string {
	return append([]string(nil), r.order...)
}

// All returns the agents in roster order.
func (r *Roster) All() []*Agent {
	agents := make([]*Agent, 0, len(r.order))
	for _, name := range r.order {
		agents = append(agents, r.agents[name])
	}
	return agents
}

// Resolve maps requested names onto roster agents. The requested list is
// truncated at cap before unknown names are dropped, so a request for more
// than cap names always reports truncated even when some of them do not
// resolve. Truncated reports whether the cap was applied so the caller can
// emit a warning.
func (r *Roster) Resolve(names []string, cap int) (agents []*Agent, truncated bool) {
	if cap > 0 && len(names) > cap {
		names = names[:cap]
		truncated = true
	}
	for _, name := range names {
		if a, ok := r.agents[name]; ok {
			agents = append(agents, a)
		}
	}
	return agents, truncated
}
