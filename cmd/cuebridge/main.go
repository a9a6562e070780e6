package main

import "github.com/zenibako/cuebridge/cmd"

func main() {
	cmd.Execute()
}
