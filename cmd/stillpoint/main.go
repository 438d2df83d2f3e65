package main

import "github.com/stillpoint/stillpoint/internal/cli"

func main() {
	cli.Execute()
}
