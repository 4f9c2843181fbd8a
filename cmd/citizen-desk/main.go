package main

import (
	"log"

	"github.com/psds-microservice/citizen-desk/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
