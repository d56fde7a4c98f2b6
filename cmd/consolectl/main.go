package main

import "github.com/n8nhost/console/internal/cli"

func main() {
	cli.Execute()
}
