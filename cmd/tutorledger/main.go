package main

import (
	"github.com/wunderling/tutorledger/internal/server"
	"go.uber.org/fx"
)

func main() {
	fx.New(server.Module).Run()
}
