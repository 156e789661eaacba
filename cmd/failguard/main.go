package main

import (
	"failguard/internal/app"

	"github.com/charmbracelet/log"
)

func main() {
	if err := app.Execute(); err != nil {
		log.Fatal("failguard terminated", "error", err)
	}
}
