package main

import "github.com/goplus/tiffpkg/cmd/tiffpkg/internal"

func main() {
	internal.Execute()
}
