package main

import (
	"github.com/metal-toolbox/devicesync/cmd"
	"github.com/metal-toolbox/devicesync/internal/log"
)

func main() {
	log.InitLogger()
	cmd.Execute()
}
