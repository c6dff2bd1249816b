package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

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

func parseVotes(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	votes := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || (n != 0 && n != 1) {
			return nil, fmt.Errorf("votes must be a comma-separated 0/1 list")
		}
		votes[i] = n
	}
	return votes, nil
}

func main() {
	configPath := flag.String("config", "voter.toml", "path to voter config")
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
	voter, err := service.NewVoter(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	driver := repl.New()
	driver.AddAction("register", "register <address> <port> <comma-separated 0/1 list>", func(args []string) error {
		if len(args) != 3 {
			return fmt.Errorf("usage: register <address> <port> <comma-separated 0/1 list>")
		}
		votes, err := parseVotes(args[2])
		if err != nil {
			return err
		}
		return voter.Register(args[0]+":"+args[1], votes)
	})
	driver.AddAction("vote", "vote <address> <port>", func(args []string) error {
		if len(args) != 2 {
			return fmt.Errorf("usage: vote <address> <port>")
		}
		return voter.Vote(args[0] + ":" + args[1])
	})
	driver.AddAction("verify", "verify", func(args []string) error {
		result, err := voter.Verify()
		if err != nil {
			return err
		}
		if !result.OK {
			fmt.Println("Election failed")
			return nil
		}
		for slot, count := range result.Counts {
			fmt.Printf("candidate %d: %d votes\n", slot, count)
		}
		return nil
	})
	driver.Run()
}
