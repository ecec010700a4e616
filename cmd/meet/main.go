package main

import "github.com/dkeye/Meet/internal/cli"

func main() {
	cli.Execute()
}
