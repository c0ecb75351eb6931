package main

import (
	"github.com/joho/godotenv"
)

func main() {
	// Best-effort: a missing .env is the common case.
	_ = godotenv.Load(".env")
	Execute()
}
