package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/wiresocks/wiresocks-ui/app"
	"github.com/wiresocks/wiresocks-ui/cmd"
	"github.com/wiresocks/wiresocks-ui/config"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] != "run" {
		cmd.ParseCmd()
		return
	}

	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	configFile := runCmd.String("config", "", "path to a yaml config file")
	if len(os.Args) > 1 {
		runCmd.Parse(os.Args[2:])
	}

	if *configFile != "" {
		if _, err := config.LoadFile(*configFile); err != nil {
			log.Fatalf("failed to load config file: %v", err)
		}
	}

	a := app.NewApp()
	if err := a.Init(); err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	if err := a.Start(); err != nil {
		log.Fatalf("failed to start app: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGTERM, os.Interrupt)
	for {
		sig := <-sigCh
		switch sig {
		case syscall.SIGHUP:
			a.RestartApp()
		default:
			a.Stop()
			return
		}
	}
}
