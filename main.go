package main

import "safemigrator/cli"

func main() {
	cli.Execute()
}
