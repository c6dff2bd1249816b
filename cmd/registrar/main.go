package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	logging "gopkg.in/op/go-logging.v1"

	"evoting/config"
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
	configPath := flag.String("config", "registrar.toml", "path to registrar config")
	port := flag.Int("port", 8000, "listen port")
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
	registrar, err := service.NewRegistrar(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := registrar.Start(*port); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	exitChan := make(chan struct{})
	go func() {
		fmt.Println(`enter "exit" to exit`)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if scanner.Text() == "exit" {
				close(exitChan)
				return
			}
		}
		close(exitChan)
	}()

	select {
	case sig := <-sigChan:
		fmt.Printf("received signal: %v\n", sig)
	case <-exitChan:
	}
	registrar.Stop()
}
