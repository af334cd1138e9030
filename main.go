package main

import "github.com/nextlevelbuilder/glowire/cmd"

func main() {
	cmd.Execute()
}
