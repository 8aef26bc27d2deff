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
		Short: "Subscriber for user update events",
		Long:  "Subscriber Service classifies each delivered user update event and settles it against the broker",
		New: func(cfg *config.Config, log logger.Logger) bootstrap.Service {
			return NewApp(cfg, log)
		},
	})
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
