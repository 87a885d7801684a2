package main

import (
	"github.com/graphora-ai/graphora/internal/server"
	"github.com/graphora-ai/graphora/internal/util"
	"github.com/graphora-ai/graphora/pkg/logger"
	"github.com/graphora-ai/graphora/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleBackend := console.NewConsoleBackend(console.ConsoleBackendParams{
		Debug: debug,
	})
	logger.Init(consoleBackend)

	server.Init()
}
