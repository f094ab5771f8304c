package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/asepsopiyan/keris-lite/internal/transport/cli"
)

func main() {
	_ = godotenv.Load()
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
