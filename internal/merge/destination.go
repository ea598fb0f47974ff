package merge

import (
	"fmt"
	"strings"

	"github.com/dpstorage/deltactl/internal/config"
	"github.com/dpstorage/deltactl/internal/model"
)

// ResolveDestination maps an environment and dataset identifier to the
// storage path, database and table name data lands under.
func ResolveDestination(cfg *config.Config, environment, dataset string) (model.Destination, error) {
	env, ok := cfg.Environments[environment]
	if !ok {
		return model.Destination{}, fmt.Errorf("environment %q not present in config file", environment)
	}
	if env.Database == "" {
		return model.Destination{}, fmt.Errorf("environment %q has no database", environment)
	}

	dest := model.Destination{
		Database: env.Database,
		Table:    TableName(dataset),
	}
	if env.Path != "" {
		dest.Path = strings.TrimRight(env.Path, "/") + "/" + dataset
	}
	return dest, nil
}

// TableName sanitizes a dataset identifier into a table name: lowercased,
// with every run of non-alphanumeric characters collapsed to an underscore.
func TableName(dataset string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(dataset) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
			}
			lastUnderscore = true
		}
	}
	name := strings.TrimRight(b.String(), "_")
	if name == "" {
		return "_"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}
