// Command chatrelayd runs the chatrelay server.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/dcoutinho/chatrelay/pkg/logging"
	"github.com/dcoutinho/chatrelay/pkg/server"
	"github.com/dcoutinho/chatrelay/pkg/version"
)

func main() {
	defaults := server.DefaultConfig()

	configFile := flag.String("config", "", "YAML config file (flags override its values)")
	listenAddr := flag.String("listen", defaults.ListenAddr, "TCP bind address")
	wsAddr := flag.String("ws", "", "HTTP bind address for the WebSocket transport (empty to disable)")
	metricsAddr := flag.String("metrics", "", "HTTP bind address for /metrics (empty to disable)")
	logLevel := flag.String("log-level", defaults.LogLevel, "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", defaults.LogFormat, "Log format: text or json")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("chatrelayd", version.Full())
		return
	}

	cfg := defaults
	if *configFile != "" {
		var err error
		cfg, err = server.LoadConfig(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
			os.Exit(1)
		}
	}

	// Explicitly set flags win over the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.ListenAddr = *listenAddr
		case "ws":
			cfg.WSAddr = *wsAddr
		case "metrics":
			cfg.MetricsAddr = *metricsAddr
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-format":
			cfg.LogFormat = *logFormat
		}
	})

	if err := logging.Setup(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stderr,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	slog.Info("chatrelayd starting", "version", version.String())

	srv := server.New(cfg)
	if err := srv.Run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
