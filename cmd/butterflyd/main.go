package main

import (
	"github.com/fleetops/butterfly/cmd/butterflyd/app"
	"github.com/fleetops/butterfly/pkg/log"
)

func main() {
	if err := app.NewCommand().Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}
