package conf

import "github.com/spf13/viper"

// setDefaults registers the default configuration values with viper.
func setDefaults() {
	viper.SetDefault("debug", false)
	viper.SetDefault("logpath", "")

	viper.SetDefault("session.description", "")
	viper.SetDefault("session.identifier", "")
	viper.SetDefault("session.institution", "University of California, San Francisco")
	viper.SetDefault("session.lab", "Chang Lab")

	viper.SetDefault("convert.format", FormatHTK)
	viper.SetDefault("convert.mesh", MeshNone)
	viper.SetDefault("convert.microphone", true)
	viper.SetDefault("convert.speakers", true)
	viper.SetDefault("convert.aux", "")
	viper.SetDefault("convert.hilbert", false)
	viper.SetDefault("convert.scalesamplerate", false)
	viper.SetDefault("convert.mini", false)
	viper.SetDefault("convert.imagingpath", "")
}
