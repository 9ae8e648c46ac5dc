package main

import (
	"trackforge/cmd"
)

func main() {
	cmd.Execute()
}
