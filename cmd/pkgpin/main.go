package main

import (
	"github.com/pkgpin/pkgpin/pkg/cmd"
)

func main() {
	cmd.Execute()
}
