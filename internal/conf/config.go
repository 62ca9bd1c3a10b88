// Package conf defines the converter settings and loads them through viper.
package conf

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// SessionSettings holds metadata written into the session archive.
type SessionSettings struct {
	Description string // session description, defaults to the block name
	Identifier  string // session identifier, defaults to a random UUID
	Institution string // institution the recording was made at
	Lab         string // lab the recording was made by
}

// ConvertSettings holds the per-run conversion options.
type ConvertSettings struct {
	Format          string // electrophysiology source format: "htk" or "mat"
	Mesh            string // cortical mesh mode: "none", "embed" or "external"
	Microphone      bool   // include the analog microphone channel
	Speakers        bool   // include the two speaker stimulus channels
	Aux             string // name for the ANIN4 auxiliary series, empty to skip
	Hilbert         bool   // include the Hilbert band processing module
	ScaleSampleRate bool   // rescale HTK sampling rates (Chang lab headers)
	Mini            bool   // truncate signal data for a quick stub conversion
	ImagingPath     string // override for the per-subject imaging directory
}

// Settings is the root configuration object for the converter.
type Settings struct {
	Debug   bool // enable debug log output
	LogPath string
	Session SessionSettings
	Convert ConvertSettings
}

// Source electrophysiology formats.
const (
	FormatHTK = "htk"
	FormatMat = "mat"
)

// Cortical mesh modes.
const (
	MeshNone     = "none"
	MeshEmbed    = "embed"
	MeshExternal = "external"
)

// Load reads the configuration file and returns the populated settings.
// When no config file exists on disk the embedded defaults are used.
func Load() (*Settings, error) {
	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	for _, p := range configPaths() {
		viper.AddConfigPath(p)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !asConfigNotFound(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		defaults, err := configFiles.ReadFile("config.yaml")
		if err != nil {
			return nil, fmt.Errorf("error reading embedded config: %w", err)
		}
		if err := viper.ReadConfig(bytes.NewReader(defaults)); err != nil {
			return nil, fmt.Errorf("error parsing embedded config: %w", err)
		}
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func asConfigNotFound(err error, target *viper.ConfigFileNotFoundError) bool {
	nf, ok := err.(viper.ConfigFileNotFoundError)
	if ok {
		*target = nf
	}
	return ok
}

func configPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "ecog2nwb"))
	}
	return paths
}
