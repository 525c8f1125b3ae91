package main

import (
	"os"

	"horse.fit/harvest/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
