package main

import "github.com/animus-coder/codesmith/internal/cli"

func main() {
	cli.Execute()
}
