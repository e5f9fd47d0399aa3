package main

import "github.com/aceteam-ai/triggerbench/cmd"

func main() {
	cmd.Execute()
}
