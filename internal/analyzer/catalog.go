package analyzer

import (
	"github.com/fentz26/gapforge/internal/config"
	"github.com/fentz26/gapforge/internal/models"
)

// DefaultCatalog returns the built-in buy options. Keys are matched as
// phrases against sub-capability text; underscores read as spaces.
func DefaultCatalog() []config.CatalogEntry {
	return []config.CatalogEntry{
		{Key: "type_checking", Source: "staticcheck", Kind: models.ActionLibrary, SetupHours: 0.5, Maturity: 9},
		{Key: "type_checking", Source: "errcheck", Kind: models.ActionLibrary, SetupHours: 0.5, Maturity: 8},
		{Key: "test_coverage", Source: "go tool cover", Kind: models.ActionLibrary, SetupHours: 0.5, Maturity: 9},
		{Key: "test_coverage", Source: "gocov", Kind: models.ActionLibrary, SetupHours: 1, Maturity: 7},
		{Key: "code_complexity", Source: "gocyclo", Kind: models.ActionLibrary, SetupHours: 0.5, Maturity: 8},
		{Key: "code_complexity", Source: "gocognit", Kind: models.ActionLibrary, SetupHours: 0.5, Maturity: 7},
		{Key: "linting", Source: "golangci-lint", Kind: models.ActionLibrary, SetupHours: 1, Maturity: 9},
		{Key: "linting", Source: "revive", Kind: models.ActionLibrary, SetupHours: 0.5, Maturity: 8},
		{Key: "security_scanning", Source: "gosec", Kind: models.ActionLibrary, SetupHours: 0.5, Maturity: 8},
		{Key: "security_scanning", Source: "snyk", Kind: models.ActionAPI, MonthlyCost: 25, SetupHours: 2, Maturity: 9},
		{Key: "dependency_audit", Source: "govulncheck", Kind: models.ActionLibrary, SetupHours: 0.5, Maturity: 9},
		{Key: "dependency_audit", Source: "socket.dev", Kind: models.ActionAPI, MonthlyCost: 20, SetupHours: 1, Maturity: 7},
	}
}

// dependencyHints maps sub-capability keywords to the packages a build would need.
var dependencyHints = []struct {
	keyword string
	dep     string
}{
	{"type", "go/types"},
	{"test", "testing"},
	{"coverage", "golang.org/x/tools/cover"},
	{"complexity", "go/ast"},
	{"error", "go/ast"},
	{"doc", "go/doc"},
	{"api", "net/http"},
	{"benchmark", "testing"},
	{"template", "text/template"},
}
