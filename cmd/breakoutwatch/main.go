package main

import "breakoutwatch/internal/cli"

func main() {
	cli.Execute()
}
