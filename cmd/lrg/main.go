package main

import "github.com/ogulcanaydogan/LLM-Route-Guardian/internal/cli"

func main() {
	cli.Execute()
}
