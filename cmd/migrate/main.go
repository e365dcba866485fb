package main

import (
	"log"

	tool "github.com/ramcharankhv-byte/taskhub/internal/tools/migrate"
)

func main() {
	if err := tool.NewRootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}
