// Package component names the logical sections of a backup archive and
// where each one lives inside it.
package component

import "path"

// Component names, in archive order
const (
	Configurations    = "configurations"
	Scripts           = "scripts"
	IntegrationConfig = "integration_config"
	Documentation     = "documentation"
	SystemState       = "system_state"
	LogsMetrics       = "logs_metrics"
	Databases         = "databases"
	Tests             = "tests"
)

// Paths of the generated members of an archive.
var (
	ScriptsArchive = path.Join(Scripts, "scripts.tar.gz")
	StateFile      = path.Join(SystemState, "state.yaml")
	BundleFile     = path.Join(SystemState, "repository.bundle")
)

// Names returns every component in archive order.
func Names() []string {
	return []string{
		Configurations,
		Scripts,
		IntegrationConfig,
		Documentation,
		SystemState,
		LogsMetrics,
		Databases,
		Tests,
	}
}

// DatabaseExtensions are captured through sqlite's VACUUM INTO.
var DatabaseExtensions = []string{".db", ".sqlite", ".sqlite3"}

// DefaultSources returns the project-relative source patterns of a
// component. system_state has no sources; it is generated.
func DefaultSources(name string) []string {
	switch name {
	case Configurations:
		return []string{
			".env", ".env.*",
			"package.json", "package-lock.json", "yarn.lock", "pnpm-lock.yaml",
			"tsconfig*.json", ".eslintrc*", ".prettierrc*", "jest.config.*",
			".editorconfig", ".nvmrc", ".npmrc",
			"go.mod", "go.sum", "requirements*.txt", "pyproject.toml",
			"lifeboat.yaml",
		}
	case Scripts:
		return []string{"scripts"}
	case IntegrationConfig:
		return []string{".github", ".gitlab-ci.yml", ".circleci", ".husky", ".linear"}
	case Documentation:
		return []string{"docs", "README*", "CHANGELOG*", "CONTRIBUTING*", "training"}
	case LogsMetrics:
		return []string{"logs", "metrics", "reports"}
	case Databases:
		return []string{"*.db", "*.sqlite", "*.sqlite3", "data", "db"}
	case Tests:
		return []string{"tests", "test", "__tests__", "e2e", "fixtures"}
	}
	return nil
}

// Sources returns the configured sources of name, falling back to the defaults.
func Sources(name string, overrides map[string][]string) []string {
	if s, ok := overrides[name]; ok {
		return s
	}
	return DefaultSources(name)
}

// Known reports whether name is a component.
func Known(name string) bool {
	for _, n := range Names() {
		if n == name {
			return true
		}
	}
	return false
}
