package main

import (
	"log/slog"
	"os"

	webservtester "github.com/Simonization/webservTester"
)

func main() {
	t := webservtester.New()

	if err := t.Run(); err != nil {
		slog.Error(err.Error())
		os.Exit(-1)
	}
}
