// Package generator derives permission names for the configured resources,
// pages and widgets and makes sure they exist in the store.
package generator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"
)

type Kind string

const (
	KindResource Kind = "resource"
	KindPage     Kind = "page"
	KindWidget   Kind = "widget"
	KindCustom   Kind = "custom"
)

var (
	ErrNoSelection   = errors.New("generator: select entities or use --all")
	ErrUnknownEntity = errors.New("generator: entity not in manifest")
)

// Selection narrows which manifest entities a run covers.
type Selection struct {
	All       bool
	Resources []string
	Pages     []string
	Widgets   []string
	// Exclude inverts the named entities: everything but them is generated.
	Exclude bool
}

func (s Selection) named() bool {
	return len(s.Resources) > 0 || len(s.Pages) > 0 || len(s.Widgets) > 0
}

type Entity struct {
	Kind        Kind
	Name        string
	Permissions []string
}

// Plan returns the entities selected from the manifest, each with the
// permission names it needs, in manifest order.
func Plan(m Manifest, sel Selection) ([]Entity, error) {
	if !sel.All && !sel.named() {
		return nil, ErrNoSelection
	}

	resources, err := pick(m.Resources, sel.Resources, sel)
	if err != nil {
		return nil, err
	}
	pages, err := pick(m.Pages, sel.Pages, sel)
	if err != nil {
		return nil, err
	}
	widgets, err := pick(m.Widgets, sel.Widgets, sel)
	if err != nil {
		return nil, err
	}
	if m.Exclude.Enabled {
		resources = without(resources, m.Exclude.Resources)
		pages = without(pages, m.Exclude.Pages)
		widgets = without(widgets, m.Exclude.Widgets)
	}

	var plan []Entity
	for _, name := range resources {
		identifier := ResourceIdentifier(name)
		permissions := make([]string, 0, len(m.PermissionPrefixes.Resource))
		for _, prefix := range m.PermissionPrefixes.Resource {
			permissions = append(permissions, prefix+"_"+identifier)
		}
		plan = append(plan, Entity{Kind: KindResource, Name: name, Permissions: permissions})
	}
	for _, name := range pages {
		plan = append(plan, Entity{Kind: KindPage, Name: name, Permissions: []string{m.PermissionPrefixes.Page + "_" + basename(name)}})
	}
	for _, name := range widgets {
		plan = append(plan, Entity{Kind: KindWidget, Name: name, Permissions: []string{m.PermissionPrefixes.Widget + "_" + basename(name)}})
	}
	if sel.All {
		for _, name := range m.CustomPermissions {
			if name = strings.TrimSpace(name); name != "" {
				plan = append(plan, Entity{Kind: KindCustom, Name: name, Permissions: []string{name}})
			}
		}
	}
	return plan, nil
}

// pick applies the selection to one entity list of the manifest.
func pick(configured, named []string, sel Selection) ([]string, error) {
	for _, name := range named {
		if !slices.Contains(configured, name) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
		}
	}
	switch {
	case sel.Exclude:
		return without(configured, named), nil
	case sel.All:
		return slices.Clone(configured), nil
	default:
		return slices.Clone(named), nil
	}
}

func without(values, excluded []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if !slices.Contains(excluded, value) {
			out = append(out, value)
		}
	}
	return out
}

// ResourceIdentifier turns a resource name such as "PostCategoryResource" into
// the identifier used in permission names ("post::category").
func ResourceIdentifier(name string) string {
	name = strings.TrimSuffix(basename(name), "Resource")
	return strings.ReplaceAll(Snake(name), "_", "::")
}

// Snake converts StudlyCase to snake_case, placing a separator before every
// upper-case letter that is not the first rune.
func Snake(value string) string {
	if strings.ToLower(value) == value && !strings.ContainsFunc(value, unicode.IsSpace) {
		return value
	}

	words := strings.Fields(value)
	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	joined := []rune(strings.Join(words, ""))

	var b strings.Builder
	for i, r := range joined {
		if i > 0 && unicode.IsUpper(r) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func basename(name string) string {
	if i := strings.LastIndexAny(name, `\/.`); i >= 0 {
		return name[i+1:]
	}
	return name
}

// Ensurer creates a permission when it is missing.
type Ensurer interface {
	EnsurePermission(ctx context.Context, name, guardName string) (bool, error)
}

type EntityReport struct {
	Kind     Kind
	Name     string
	Created  int
	Existing int
}

type Report struct {
	Entities []EntityReport
}

func (r Report) Created() int {
	total := 0
	for _, entity := range r.Entities {
		total += entity.Created
	}
	return total
}

// Apply makes sure every planned permission exists under guardName.
func Apply(ctx context.Context, plan []Entity, guardName string, store Ensurer) (Report, error) {
	var report Report
	for _, entity := range plan {
		entry := EntityReport{Kind: entity.Kind, Name: entity.Name}
		for _, permission := range entity.Permissions {
			created, err := store.EnsurePermission(ctx, permission, guardName)
			if err != nil {
				return report, fmt.Errorf("ensure %s: %w", permission, err)
			}
			if created {
				entry.Created++
			} else {
				entry.Existing++
			}
		}
		report.Entities = append(report.Entities, entry)
	}
	return report, nil
}
