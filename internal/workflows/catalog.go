package workflows

import (
	"github.com/Kocoro-lab/queryrouter/internal/activities"
	"github.com/Kocoro-lab/queryrouter/internal/constants"
)

// Path is an ordered list of steps run for one category.
type Path struct {
	Name  string   `json:"name"`
	Steps []string `json:"steps"`
}

// PathCatalog maps categories to paths. Categories without an entry take
// Default, so an unexpected classifier label is routed rather than failed.
type PathCatalog struct {
	Paths   map[activities.Category]Path
	Default Path
}

var (
	DatabasePath = Path{Name: "db", Steps: []string{constants.BuildQueryActivity, constants.ExecuteQueryActivity}}
	GenericPath  = Path{Name: "generic", Steps: []string{constants.AnswerDirectlyActivity}}
)

func DefaultCatalog() PathCatalog {
	return PathCatalog{
		Paths: map[activities.Category]Path{
			activities.CategoryDatabase:    DatabasePath,
			activities.CategoryNonDatabase: GenericPath,
		},
		Default: GenericPath,
	}
}

// Register adds or replaces the path for a category.
func (c *PathCatalog) Register(category activities.Category, p Path) {
	if c.Paths == nil {
		c.Paths = map[activities.Category]Path{}
	}
	c.Paths[category] = p
}

// Resolve returns the path for category, or Default.
func (c PathCatalog) Resolve(category activities.Category) Path {
	if p, ok := c.Paths[category]; ok {
		return p
	}
	return c.Default
}
