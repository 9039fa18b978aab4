package main

import (
	"go-civitai-cache/cmd/civitai-cache/cmd"
)

func main() {
	cmd.Execute()
}
