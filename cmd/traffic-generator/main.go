package main

import (
	"os"

	"userbus/internal/config"
	"userbus/internal/logger"
	"userbus/pkg/bootstrap"
)

func main() {
	cmd := bootstrap.NewRootCommand(bootstrap.CommandSpec{
		Name:  serviceName,
		Short: "Synthetic traffic for the publisher",
		Long:  "Traffic Generator periodically posts synthetic user update batches to the publisher service",
		New: func(cfg *config.Config, log logger.Logger) bootstrap.Service {
			return NewApp(cfg, log)
		},
	})
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
