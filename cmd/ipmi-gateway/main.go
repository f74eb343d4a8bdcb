package main

import "github.com/JamesDodds/ipmi-api-gateway/internal/cli"

func main() {
	cli.Execute()
}
