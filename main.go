package main

import "github.com/tuitora/tuitora-gateway/cmd"

func main() {
	cmd.Execute()
}
