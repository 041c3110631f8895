package main

import (
	"LinkFM/cmd"
)

func main() {
	cmd.Execute()
}
