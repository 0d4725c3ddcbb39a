// ABOUTME: Closed set of agent roles with their prompt builders and fallbacks.
// ABOUTME: Unknown roles fail validation instead of falling through to a generic template.

package agent

import (
	"fmt"
	"sort"
	"strings"
)

// Role identifies one of the known agent specialities. The set is closed:
// dispatching on a role string that is not in the table is a validation
// error, never a silent fallthrough.
type Role string

const (
	RoleVisionary  Role = "visionary"
	RoleArchitect  Role = "architect"
	RoleFrontend   Role = "frontend"
	RoleBackend    Role = "backend"
	RoleDesigner   Role = "designer"
	RoleSEO        Role = "seo"
	RoleDatabase   Role = "database"
	RoleDevOps     Role = "devops"
	RoleCritic     Role = "critic"
	RoleOptimizer  Role = "optimizer"
	RoleTranslator Role = "translator"
)

// roleSpec holds everything keyed by a Role: the human-readable label,
// the prompt builder, and the deterministic fallback text used when the
// backend cannot answer.
type roleSpec struct {
	label    string
	prompt   func(input string) string
	fallback string
}

var roleTable = map[Role]roleSpec{
	RoleVisionary: {
		label: "Team Leader / Visionary",
		prompt: func(in string) string {
			return "As the project visionary, analyze this request and propose a strategic approach: " + in
		},
		fallback: "Strategic vision: a collaborative approach with user-needs analysis is recommended.",
	},
	RoleArchitect: {
		label: "Software Architect",
		prompt: func(in string) string {
			return "As the software architect, design a technical solution for: " + in
		},
		fallback: "Suggested architecture: modular services behind a clean API boundary, with a datastore fitted to the use case.",
	},
	RoleFrontend: {
		label: "Frontend Engineer",
		prompt: func(in string) string {
			return "As the frontend engineer, propose a React/JavaScript solution for: " + in
		},
		fallback: "Frontend solution: component-based UI with reusable parts, hook-managed state, responsive design.",
	},
	RoleBackend: {
		label: "Backend Engineer",
		prompt: func(in string) string {
			return "As the backend engineer, design an API for: " + in
		},
		fallback: "Backend API: validated endpoints, token-based authentication, generated documentation.",
	},
	RoleDesigner: {
		label: "UI/UX Designer",
		prompt: func(in string) string {
			return "As the UI/UX designer, propose a user interface for: " + in
		},
		fallback: "Interface design: modern layout, coherent palette, intuitive experience with smooth animations.",
	},
	RoleSEO: {
		label: "SEO/Content Expert",
		prompt: func(in string) string {
			return "As the SEO expert, optimize the content for: " + in
		},
		fallback: "SEO optimization: structured content, relevant keywords, meta tags tuned for ranking.",
	},
	RoleDatabase: {
		label: "Database Specialist",
		prompt: func(in string) string {
			return "As the database specialist, design a schema for: " + in
		},
		fallback: "Database schema: normalized tables, optimized indexes, relations defined by the requirements.",
	},
	RoleDevOps: {
		label: "DevOps Expert",
		prompt: func(in string) string {
			return "As the DevOps expert, propose a deployment for: " + in
		},
		fallback: "Deployment: containerized services, automated CI/CD, monitoring and scalability covered.",
	},
	RoleCritic: {
		label: "Quality Critic",
		prompt: func(in string) string {
			return "As the quality critic, analyze the improvement points for: " + in
		},
		fallback: "Improvement points: code review needed, automated test coverage, security hardening.",
	},
	RoleOptimizer: {
		label: "Code Optimizer",
		prompt: func(in string) string {
			return "As the code optimizer, improve the performance of: " + in
		},
		fallback: "Optimizations: improved performance, refactored hot paths, best practices applied.",
	},
	RoleTranslator: {
		label: "Translator",
		prompt: func(in string) string {
			return "As the translator, adapt this content: " + in
		},
		fallback: "Translation: multilingual adaptation with cultural context and appropriate terminology.",
	},
}

// ParseRole validates a role string against the known set.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := roleTable[r]; !ok {
		return "", fmt.Errorf("unknown agent role %q (known roles: %s)", s, strings.Join(KnownRoles(), ", "))
	}
	return r, nil
}

// KnownRoles returns the sorted list of valid role identifiers.
func KnownRoles() []string {
	roles := make([]string, 0, len(roleTable))
	for r := range roleTable {
		roles = append(roles, string(r))
	}
	sort.Strings(roles)
	return roles
}

// Label returns the human-readable role label.
func (r Role) Label() string {
	return roleTable[r].label
}

// buildPrompt constructs the role-specific prompt for a stage. Results of
// earlier stages, if any, are appended so later agents can build on them.
func buildPrompt(role Role, input string, priorStages map[string]string) string {
	var b strings.Builder
	b.WriteString(roleTable[role].prompt(input))

	if len(priorStages) > 0 {
		keys := make([]string, 0, len(priorStages))
		for k := range priorStages {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString("\n\nResults from earlier stages:\n")
		for _, k := range keys {
			b.WriteString("- ")
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(priorStages[k])
			b.WriteString("\n")
		}
	}

	return b.String()
}
