package main

import "github.com/nfrund/conftimeout/cmd/conftimeout/cmd"

func main() {
	cmd.Execute()
}
