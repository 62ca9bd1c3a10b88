// Package nwbspec builds NWB schema-extension definitions and emits them as
// namespace + extensions YAML file pairs consumed by downstream NWB tooling.
package nwbspec

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"ecog2nwb/internal/errors"
)

// Quantity values for groups and datasets.
const (
	QuantityOptional   = "?"
	QuantityZeroOrMore = "*"
	QuantityOneOrMore  = "+"
)

// RefSpec declares a dataset dtype that references another object by type.
type RefSpec struct {
	TargetType string `yaml:"target_type"`
	RefType    string `yaml:"reftype"`
}

// ObjectRef returns a by-object reference to the given neurodata type.
func ObjectRef(targetType string) *RefSpec {
	return &RefSpec{TargetType: targetType, RefType: "object"}
}

// AttributeSpec declares one attribute of a group.
type AttributeSpec struct {
	Name     string `yaml:"name"`
	Doc      string `yaml:"doc"`
	DType    string `yaml:"dtype"`
	Required *bool  `yaml:"required,omitempty"`
}

// Optional marks the attribute as not required and returns it for chaining
// into spec literals.
func (a AttributeSpec) Optional() AttributeSpec {
	f := false
	a.Required = &f
	return a
}

// DatasetSpec declares one dataset of a group. DType is either a plain type
// name string or a *RefSpec.
type DatasetSpec struct {
	Name     string   `yaml:"name"`
	Doc      string   `yaml:"doc"`
	DType    any      `yaml:"dtype,omitempty"`
	Shape    []*int   `yaml:"shape,omitempty,flow"`
	Dims     []string `yaml:"dims,omitempty,flow"`
	Quantity string   `yaml:"quantity,omitempty"`
}

// GroupSpec declares one group, possibly defining a new neurodata type.
type GroupSpec struct {
	NeurodataTypeDef string          `yaml:"neurodata_type_def,omitempty"`
	NeurodataTypeInc string          `yaml:"neurodata_type_inc,omitempty"`
	Name             string          `yaml:"name,omitempty"`
	Doc              string          `yaml:"doc"`
	Quantity         string          `yaml:"quantity,omitempty"`
	Datasets         []DatasetSpec   `yaml:"datasets,omitempty"`
	Groups           []*GroupSpec    `yaml:"groups,omitempty"`
	Attributes       []AttributeSpec `yaml:"attributes,omitempty"`
}

// Dim returns a fixed dimension length for a shape declaration.
func Dim(n int) *int {
	return &n
}

// AnyDim is an unconstrained dimension length, rendered as YAML null.
func AnyDim() *int {
	return nil
}

// NamespaceBuilder collects extension specs for one namespace and exports
// the namespace + extensions YAML pair.
type NamespaceBuilder struct {
	name   string
	doc    string
	groups []*GroupSpec
}

// NewNamespaceBuilder constructs a builder for a named namespace.
func NewNamespaceBuilder(doc, name string) *NamespaceBuilder {
	return &NamespaceBuilder{name: name, doc: doc}
}

// AddSpec registers a top-level group spec with the namespace.
func (nb *NamespaceBuilder) AddSpec(g *GroupSpec) {
	nb.groups = append(nb.groups, g)
}

// ExtensionsFileName returns the extensions YAML file name for the namespace.
func (nb *NamespaceBuilder) ExtensionsFileName() string {
	return nb.name + ".extensions.yaml"
}

// NamespaceFileName returns the namespace YAML file name.
func (nb *NamespaceBuilder) NamespaceFileName() string {
	return nb.name + ".namespace.yaml"
}

type extensionsDoc struct {
	Groups []*GroupSpec `yaml:"groups"`
}

type namespaceDoc struct {
	Namespaces []namespaceEntry `yaml:"namespaces"`
}

type namespaceEntry struct {
	Name   string        `yaml:"name"`
	Doc    string        `yaml:"doc"`
	Schema []schemaEntry `yaml:"schema"`
}

type schemaEntry struct {
	Namespace string `yaml:"namespace,omitempty"`
	Source    string `yaml:"source,omitempty"`
}

// Export writes both YAML files of the namespace into dir.
func (nb *NamespaceBuilder) Export(dir string) error {
	if len(nb.groups) == 0 {
		return errors.Newf("namespace %s has no specs to export", nb.name).
			Component("nwbspec").
			Category(errors.CategoryValidation).
			Build()
	}

	ext := extensionsDoc{Groups: nb.groups}
	if err := writeYAML(filepath.Join(dir, nb.ExtensionsFileName()), &ext); err != nil {
		return err
	}

	ns := namespaceDoc{Namespaces: []namespaceEntry{{
		Name: nb.name,
		Doc:  nb.doc,
		Schema: []schemaEntry{
			{Namespace: "core"},
			{Source: nb.ExtensionsFileName()},
		},
	}}}
	return writeYAML(filepath.Join(dir, nb.NamespaceFileName()), &ns)
}

func writeYAML(path string, doc any) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Newf("marshaling %s: %w", path, err).
			Component("nwbspec").
			Category(errors.CategorySerialization).
			Build()
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New(err).
			Component("nwbspec").
			Category(errors.CategoryFileIO).
			FileContext(path, int64(len(data))).
			Build()
	}
	return nil
}
