package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ecog2nwb/internal/errors"
)

func validSettings() *Settings {
	return &Settings{
		Convert: ConvertSettings{
			Format: FormatHTK,
			Mesh:   MeshNone,
		},
	}
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{name: "defaults", mutate: func(s *Settings) {}},
		{name: "mat format", mutate: func(s *Settings) { s.Convert.Format = FormatMat }},
		{name: "embedded mesh", mutate: func(s *Settings) { s.Convert.Mesh = MeshEmbed }},
		{name: "external mesh", mutate: func(s *Settings) { s.Convert.Mesh = MeshExternal }},
		{name: "unknown format", mutate: func(s *Settings) { s.Convert.Format = "edf" }, wantErr: true},
		{name: "unknown mesh mode", mutate: func(s *Settings) { s.Convert.Mesh = "internal" }, wantErr: true},
		{name: "empty format", mutate: func(s *Settings) { s.Convert.Format = "" }, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)
			err := ValidateSettings(s)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			var ee *errors.EnhancedError
			assert.True(t, errors.As(err, &ee))
			assert.Equal(t, errors.CategoryConfiguration, ee.Category)
		})
	}
}
