// Command chatrelay is a thin terminal client: it sends raw command/chat
// lines from stdin and prints rendered server events to stdout.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dcoutinho/chatrelay/pkg/client"
	"github.com/dcoutinho/chatrelay/pkg/logging"
	"github.com/dcoutinho/chatrelay/pkg/version"
)

func main() {
	addr := flag.String("addr", "localhost:9500", "server address")
	nick := flag.String("nick", "", "register this nickname on connect")
	logLevel := flag.String("log-level", "warn", "Log level: "+logging.LevelNames())
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("chatrelay", version.Full())
		return
	}

	if err := logging.Setup(logging.Options{Level: *logLevel, Output: os.Stderr}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	c, err := client.Dial(*addr, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if *nick != "" {
		if err := c.Send("/nick " + *nick); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}

	if err := c.Run(os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "connection error: %v\n", err)
		os.Exit(1)
	}
}
