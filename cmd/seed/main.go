package main

import (
	"log"

	tool "github.com/ramcharankhv-byte/taskhub/internal/tools/seed"
)

func main() {
	if err := tool.NewRootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}
