package main

import "github.com/iksnae/codetask-session/cmd"

func main() {
	cmd.Execute()
}
