package main

import (
	"os"

	"github.com/vasilisp/edurag/internal/cli"
	"github.com/vasilisp/edurag/internal/server"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "cli":
			cli.Main(os.Args[2:])
			return
		case "index":
			server.Index(os.Args[2:])
			return
		}
	}

	server.Main()
}
