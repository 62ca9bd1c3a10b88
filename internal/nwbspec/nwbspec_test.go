package nwbspec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestExportWritesFilePair(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, EcogNamespace().Export(dir))

	for _, name := range []string{"ecog.extensions.yaml", "ecog.namespace.yaml"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

func TestExportEmptyNamespaceFails(t *testing.T) {
	t.Parallel()

	nb := NewNamespaceBuilder("empty", "empty")
	assert.Error(t, nb.Export(t.TempDir()))
}

func TestEcogNamespaceRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, EcogNamespace().Export(dir))

	data, err := os.ReadFile(filepath.Join(dir, "ecog.extensions.yaml"))
	require.NoError(t, err)

	var doc struct {
		Groups []*GroupSpec `yaml:"groups"`
	}
	require.NoError(t, yaml.Unmarshal(data, &doc))
	require.Len(t, doc.Groups, 1)

	surfaces := doc.Groups[0]
	assert.Equal(t, "CorticalSurfaces", surfaces.NeurodataTypeDef)
	assert.Equal(t, "cortical_surfaces", surfaces.Name)
	assert.Equal(t, QuantityOptional, surfaces.Quantity)

	require.Len(t, surfaces.Groups, 1)
	surface := surfaces.Groups[0]
	assert.Equal(t, "Surface", surface.NeurodataTypeDef)
	assert.Equal(t, QuantityOneOrMore, surface.Quantity)

	require.Len(t, surface.Datasets, 2)
	faces := surface.Datasets[0]
	assert.Equal(t, "faces", faces.Name)
	assert.Equal(t, "uint", faces.DType)
	require.Len(t, faces.Shape, 2)
	assert.Nil(t, faces.Shape[0], "first dimension is unconstrained")
	require.NotNil(t, faces.Shape[1])
	assert.Equal(t, 3, *faces.Shape[1])
	assert.Equal(t, []string{"face_number", "vertex_index"}, faces.Dims)
}

func TestNamespaceFileSchema(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, EcogNamespace().Export(dir))

	data, err := os.ReadFile(filepath.Join(dir, "ecog.namespace.yaml"))
	require.NoError(t, err)

	var doc struct {
		Namespaces []struct {
			Name   string `yaml:"name"`
			Doc    string `yaml:"doc"`
			Schema []struct {
				Namespace string `yaml:"namespace"`
				Source    string `yaml:"source"`
			} `yaml:"schema"`
		} `yaml:"namespaces"`
	}
	require.NoError(t, yaml.Unmarshal(data, &doc))
	require.Len(t, doc.Namespaces, 1)

	ns := doc.Namespaces[0]
	assert.Equal(t, "ecog", ns.Name)
	assert.Equal(t, "ecog extensions", ns.Doc)
	require.Len(t, ns.Schema, 2)
	assert.Equal(t, "core", ns.Schema[0].Namespace)
	assert.Equal(t, "ecog.extensions.yaml", ns.Schema[1].Source)
}

func TestMetaNamespaceDefinitions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	nb := MetaNamespace()
	require.NoError(t, nb.Export(dir))

	data, err := os.ReadFile(filepath.Join(dir, nb.ExtensionsFileName()))
	require.NoError(t, err)

	var doc struct {
		Groups []*GroupSpec `yaml:"groups"`
	}
	require.NoError(t, yaml.Unmarshal(data, &doc))
	require.Len(t, doc.Groups, 2)

	subject := doc.Groups[0]
	assert.Equal(t, "ExtendedSubject", subject.NeurodataTypeDef)
	assert.Equal(t, "Subject", subject.NeurodataTypeInc)
	require.Len(t, subject.Groups, 2)

	surgeries := subject.Groups[0]
	assert.Equal(t, "Surgeries", surgeries.NeurodataTypeDef)
	require.Len(t, surgeries.Groups, 1)

	surgery := surgeries.Groups[0]
	assert.Equal(t, "Surgery", surgery.NeurodataTypeDef)
	assert.Equal(t, QuantityOneOrMore, surgery.Quantity)

	// the devices dataset references Device objects
	require.Len(t, surgery.Datasets, 1)
	ref, ok := surgery.Datasets[0].DType.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Device", ref["target_type"])
	assert.Equal(t, "object", ref["reftype"])

	require.Len(t, surgery.Groups, 1)
	injections := surgery.Groups[0]
	require.Len(t, injections.Groups, 1)
	injection := injections.Groups[0]
	assert.Equal(t, "VirusInjection", injection.NeurodataTypeDef)
	require.NotEmpty(t, injection.Attributes)
	assert.Equal(t, "virus", injection.Attributes[0].Name)
	assert.Nil(t, injection.Attributes[0].Required, "required attributes omit the flag")
	rate := injection.Attributes[2]
	require.NotNil(t, rate.Required)
	assert.False(t, *rate.Required)

	fiber := doc.Groups[1]
	assert.Equal(t, "OpticalFiber", fiber.NeurodataTypeDef)
	assert.Equal(t, "Device", fiber.NeurodataTypeInc)
}
