package conf

import (
	"ecog2nwb/internal/errors"
)

// ValidateSettings checks enumerated option values before any I/O happens.
// Unknown values are configuration errors, reported before output creation.
func ValidateSettings(settings *Settings) error {
	switch settings.Convert.Format {
	case FormatHTK, FormatMat:
	default:
		return errors.Newf("unrecognized electrophysiology format: %q", settings.Convert.Format).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	switch settings.Convert.Mesh {
	case MeshNone, MeshEmbed, MeshExternal:
	default:
		return errors.Newf("unrecognized cortical mesh mode: %q", settings.Convert.Mesh).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return nil
}
