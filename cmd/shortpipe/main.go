package main

import "github.com/shortpipe/shortpipe/internal/cli"

func main() {
	cli.Main()
}
