// Package catalog is the built-in list of well-known TV streaming apps,
// used to fill display names and categories when an app is registered.
package catalog

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed known-apps.yaml
var knownAppsYAML []byte

// App is one platform variant of a known app.
type App struct {
	PackageName   string `yaml:"package"`
	DisplayName   string `yaml:"name"`
	Category      string `yaml:"category"`
	IsKidsVariant bool   `yaml:"kids"`
}

type file struct {
	Apps []App `yaml:"apps"`
}

// Catalog indexes known apps by package and display name.
type Catalog struct {
	apps      []App
	byPackage map[string]App
	byName    map[string][]App
}

// Parse builds a catalog from YAML. Duplicate packages are rejected.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("error unmarshalling catalog YAML: %w", err)
	}

	c := &Catalog{
		apps:      f.Apps,
		byPackage: make(map[string]App, len(f.Apps)),
		byName:    make(map[string][]App),
	}
	for _, app := range f.Apps {
		if app.PackageName == "" || app.DisplayName == "" {
			return nil, fmt.Errorf("catalog entry %+v needs package and name", app)
		}
		if _, dup := c.byPackage[app.PackageName]; dup {
			return nil, fmt.Errorf("duplicate catalog package %s", app.PackageName)
		}
		c.byPackage[app.PackageName] = app
		c.byName[app.DisplayName] = append(c.byName[app.DisplayName], app)
	}
	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded catalog.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(knownAppsYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded catalog: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Apps returns every entry in file order.
func (c *Catalog) Apps() []App {
	return append([]App(nil), c.apps...)
}

// FindByPackage looks up a package.
func (c *Catalog) FindByPackage(packageName string) (App, bool) {
	app, ok := c.byPackage[packageName]
	return app, ok
}

// FindVariants returns every platform variant sharing a display name.
func (c *Catalog) FindVariants(displayName string) []App {
	return append([]App(nil), c.byName[displayName]...)
}

// UniqueNames returns display names once each, in file order.
func (c *Catalog) UniqueNames() []string {
	seen := make(map[string]bool, len(c.byName))
	names := make([]string, 0, len(c.byName))
	for _, app := range c.apps {
		if seen[app.DisplayName] {
			continue
		}
		seen[app.DisplayName] = true
		names = append(names, app.DisplayName)
	}
	return names
}
