package main

import (
	"log/slog"
	"os"

	"ecog2nwb/cmd"
	"ecog2nwb/internal/conf"
	"ecog2nwb/internal/logging"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		logging.Init(slog.LevelInfo)
		logging.Fatal("error loading configuration", "error", err)
	}

	level := slog.LevelInfo
	if settings.Debug {
		level = slog.LevelDebug
	}
	logging.Init(level)

	if settings.LogPath != "" {
		fileLogger, closeLogger, err := logging.NewFileLogger(settings.LogPath, "ecog2nwb", level)
		if err != nil {
			logging.Fatal("error opening log file", "path", settings.LogPath, "error", err)
		}
		defer closeLogger()
		slog.SetDefault(fileLogger)
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		logging.Error("command failed", "error", err)
		os.Exit(1)
	}
}
