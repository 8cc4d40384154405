package main

import "github.com/tylerbutler/repopo/internal/cli"

func main() {
	cli.Execute()
}
