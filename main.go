package main

import (
	"github.com/maxgio92/funclat/pkg/cmd"
)

func main() {
	cmd.Execute()
}
