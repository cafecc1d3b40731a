package main

import (
	cmd "github.com/kerbaras/folder2cbz/cmd/folder2cbz"
)

func main() {
	cmd.Execute()
}
