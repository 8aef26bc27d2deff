package main

import (
	"os"

	_ "userbus/cmd/publisher-service/docs"
	"userbus/internal/config"
	"userbus/internal/logger"
	"userbus/pkg/bootstrap"
)

// @title           User Event Publisher API
// @version         1.0
// @description     Accepts batches of user update events and enqueues one message per event
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.url    http://www.example.com/support
// @contact.email  support@example.com

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /

// @schemes   http https

func main() {
	cmd := bootstrap.NewRootCommand(bootstrap.CommandSpec{
		Name:  serviceName,
		Short: "Publisher for user update event batches",
		Long:  "Publisher Service validates batch submissions, archives them and enqueues one message per unit event",
		New: func(cfg *config.Config, log logger.Logger) bootstrap.Service {
			return NewApp(cfg, log)
		},
	})
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
