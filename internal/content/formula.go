// Package content loads designer-authored dice formula definitions from YAML.
package content

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/dicelang/internal/dice"
)

// FormulaDef is the on-disk shape of a named formula. Variables are
// themselves expressions, so a default can be a plain number ("3") or a
// sub-formula ("1d4").
type FormulaDef struct {
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Expression  string            `yaml:"expression"`
	Variables   map[string]string `yaml:"variables"`
}

// NamedFormula pairs a parsed formula with its definition metadata.
type NamedFormula struct {
	Def     FormulaDef
	Formula *dice.Formula
}

// LoadFormulas reads all .yaml files in dir and parses each as a FormulaDef.
//
// Precondition: dir must be a readable directory path.
// Postcondition: Returns all parsed definitions (may be empty slice) or a
// non-nil error.
func LoadFormulas(dir string) ([]*FormulaDef, error) {
	files, err := yamlFiles(dir)
	if err != nil {
		return nil, err
	}
	defs := make([]*FormulaDef, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		var d FormulaDef
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("parsing formula file %s: %w", path, err)
		}
		defs = append(defs, &d)
	}
	return defs, nil
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	return paths, nil
}

// Registry provides lookup of compiled formulas by ID.
type Registry struct {
	formulas map[string]*NamedFormula
}

// NewRegistry returns an empty Registry.
//
// Postcondition: Returns a non-nil *Registry ready to accept registrations.
func NewRegistry() *Registry {
	return &Registry{formulas: make(map[string]*NamedFormula)}
}

// Register compiles a definition and adds it to the registry.
//
// Precondition: def must be non-nil with a non-empty ID and a parseable
// Expression.
// Postcondition: The formula is retrievable via Formula using def.ID; if
// called multiple times with the same ID, the last call wins.
func (r *Registry) Register(def *FormulaDef) error {
	if def == nil {
		return fmt.Errorf("formula definition must be non-nil")
	}
	if def.ID == "" {
		return fmt.Errorf("formula definition has empty id (name %q)", def.Name)
	}
	f, err := dice.Parse(def.Expression)
	if err != nil {
		return fmt.Errorf("compiling formula %s: %w", def.ID, err)
	}
	if len(def.Variables) > 0 {
		vars := make(dice.Bindings, len(def.Variables))
		for name, expr := range def.Variables {
			sub, err := dice.Parse(expr)
			if err != nil {
				return fmt.Errorf("compiling formula %s variable %s: %w", def.ID, name, err)
			}
			vars[name] = sub
		}
		f = f.Bind(vars)
	}
	r.formulas[def.ID] = &NamedFormula{Def: *def, Formula: f}
	return nil
}

// Formula returns the compiled formula for the given ID, if registered.
//
// Precondition: id may be any string.
// Postcondition: Returns the registered formula and true, or nil and false if
// not found.
func (r *Registry) Formula(id string) (*NamedFormula, bool) {
	f, ok := r.formulas[id]
	return f, ok
}

// IDs returns the IDs of all registered formulas in unspecified order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.formulas))
	for id := range r.formulas {
		ids = append(ids, id)
	}
	return ids
}

// LoadRegistry loads every formula definition in dir into a fresh Registry.
//
// Precondition: dir must be a readable directory of formula YAML files.
// Postcondition: Returns a registry containing every definition, or a non-nil
// error naming the first file or expression that failed.
func LoadRegistry(dir string) (*Registry, error) {
	defs, err := LoadFormulas(dir)
	if err != nil {
		return nil, err
	}
	r := NewRegistry()
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}
