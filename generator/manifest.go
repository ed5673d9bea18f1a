package generator

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Manifest lists the entities permissions are generated for.
type Manifest struct {
	GuardName          string   `mapstructure:"guard_name"`
	PermissionPrefixes Prefixes `mapstructure:"permission_prefixes"`
	Resources          []string `mapstructure:"resources"`
	Pages              []string `mapstructure:"pages"`
	Widgets            []string `mapstructure:"widgets"`
	CustomPermissions  []string `mapstructure:"custom_permissions"`
	Exclude            Exclude  `mapstructure:"exclude"`
}

type Prefixes struct {
	Resource []string `mapstructure:"resource"`
	Page     string   `mapstructure:"page"`
	Widget   string   `mapstructure:"widget"`
}

type Exclude struct {
	Enabled   bool     `mapstructure:"enabled"`
	Resources []string `mapstructure:"resources"`
	Pages     []string `mapstructure:"pages"`
	Widgets   []string `mapstructure:"widgets"`
}

var DefaultResourcePrefixes = []string{
	"view",
	"view_any",
	"create",
	"update",
	"restore",
	"restore_any",
	"replicate",
	"reorder",
	"delete",
	"delete_any",
	"force_delete",
	"force_delete_any",
}

// LoadManifest reads the manifest at path. A missing file yields the defaults
// unless required is set. SHIELD_* environment variables override file values.
func LoadManifest(path string, required bool) (Manifest, error) {
	v := viper.New()
	v.SetDefault("guard_name", "web")
	v.SetDefault("permission_prefixes.resource", DefaultResourcePrefixes)
	v.SetDefault("permission_prefixes.page", "page")
	v.SetDefault("permission_prefixes.widget", "widget")
	v.SetDefault("resources", []string{})
	v.SetDefault("pages", []string{})
	v.SetDefault("widgets", []string{})
	v.SetDefault("custom_permissions", []string{})
	v.SetDefault("exclude.enabled", true)
	v.SetDefault("exclude.resources", []string{})
	v.SetDefault("exclude.pages", []string{})
	v.SetDefault("exclude.widgets", []string{})

	v.SetEnvPrefix("SHIELD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Manifest{}, fmt.Errorf("read manifest %s: %w", path, err)
			}
		} else if required || !errors.Is(err, os.ErrNotExist) {
			return Manifest{}, fmt.Errorf("manifest %s: %w", path, err)
		}
	}

	var m Manifest
	if err := v.Unmarshal(&m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	if strings.TrimSpace(m.GuardName) == "" {
		return Manifest{}, errors.New("manifest guard_name must not be empty")
	}
	return m, nil
}
