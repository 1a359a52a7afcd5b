package main

import "github.com/goliatone/go-cloak/cmd/cloak/cmd"

func main() {
	cmd.Execute()
}
