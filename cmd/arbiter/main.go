package main

import (
	"flag"
	"fmt"
	"os"

	logging "gopkg.in/op/go-logging.v1"

	"evoting/config"
	"evoting/repl"
	"evoting/service"
)

const logFormat = "%{color}%{time:15:04:05.000} %{module} ▶ %{level:.4s}%{color:reset} %{message}"

func setupLogging(level logging.Level) {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatted := logging.NewBackendFormatter(backend, logging.MustStringFormatter(logFormat))
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(level, "")
	logging.SetBackend(leveled)
}

func main() {
	configPath := flag.String("config", "arbiter.toml", "path to arbiter config")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := logging.NOTICE
	if *verbose {
		level = logging.DEBUG
	}
	setupLogging(level)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	arbiter, err := service.NewArbiter(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	driver := repl.New()
	driver.AddAction("keygen", "keygen", func(args []string) error {
		return arbiter.Keygen()
	})
	driver.AddAction("adjudicate", "adjudicate", func(args []string) error {
		return arbiter.Adjudicate()
	})
	driver.Run()
}
