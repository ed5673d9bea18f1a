// Package stub turns a snapshot into the source of a standalone seeder
// program and writes it to disk.
package stub

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
	"unicode"

	"shield/models"
	"shield/snapshot"
)

// PublishedStubPath is where a project may place its own copy of the stub.
const PublishedStubPath = "stubs/shield/shield_seeder.go.stub"

//go:embed stubs/shield_seeder.go.stub
var defaultStub string

var ErrCollision = errors.New("file already exists")

// CheckForCollision reports the first of paths that already exists.
func CheckForCollision(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrCollision, path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", path, err)
		}
	}
	return nil
}

// Data is the value the stub template is executed with.
type Data struct {
	RolePermissions   string
	DirectPermissions string
	RuntimeImport     string
	Tables            models.Tables
	Snapshot          snapshot.Snapshot
}

type Renderer struct {
	// StubPath overrides the stub lookup when set.
	StubPath      string
	RuntimeImport string
	Tables        models.Tables
}

// Source returns the stub text: the explicit StubPath, then a published stub
// in the working directory, then the embedded default.
func (r Renderer) Source() (string, error) {
	if r.StubPath != "" {
		content, err := os.ReadFile(r.StubPath)
		if err != nil {
			return "", fmt.Errorf("read stub: %w", err)
		}
		return string(content), nil
	}
	content, err := os.ReadFile(PublishedStubPath)
	if err == nil {
		return string(content), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read published stub: %w", err)
	}
	return defaultStub, nil
}

func (r Renderer) Render(snap snapshot.Snapshot) ([]byte, error) {
	if !validImportPath(r.RuntimeImport) {
		return nil, fmt.Errorf("invalid seeder runtime import path %q", r.RuntimeImport)
	}

	source, err := r.Source()
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New("shield_seeder").Funcs(template.FuncMap{"literal": literal}).Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse stub: %w", err)
	}

	rolePermissions, err := encode(snap.RolePermissions)
	if err != nil {
		return nil, fmt.Errorf("encode role permissions: %w", err)
	}
	directPermissions, err := encode(snap.DirectPermissions)
	if err != nil {
		return nil, fmt.Errorf("encode direct permissions: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, Data{
		RolePermissions:   rolePermissions,
		DirectPermissions: directPermissions,
		RuntimeImport:     r.RuntimeImport,
		Tables:            r.Tables,
		Snapshot:          snap,
	})
	if err != nil {
		return nil, fmt.Errorf("execute stub: %w", err)
	}

	formatted, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format generated seeder: %w", err)
	}
	return formatted, nil
}

// Write stores content at path, creating parent directories.
func Write(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create seeder directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write seeder: %w", err)
	}
	return nil
}

func encode(value any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// literal renders s as a Go string literal, raw when possible.
func literal(s string) string {
	if strconv.CanBackquote(s) {
		return "`" + s + "`"
	}
	return strconv.Quote(s)
}

// validImportPath applies the character rules the Go parser enforces on
// import paths.
func validImportPath(path string) bool {
	const illegal = `!"#$%&'()*,:;<=>?[\]^{|}` + "`\uFFFD"
	for _, r := range path {
		if !unicode.IsGraphic(r) || unicode.IsSpace(r) || strings.ContainsRune(illegal, r) {
			return false
		}
	}
	return path != ""
}
