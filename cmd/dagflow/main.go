package main

import "github.com/kbukum/dagflow/cli"

func main() {
	cli.Execute()
}
