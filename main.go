package main

import "github.com/shaharia-lab/mailhook/cmd"

func main() {
	cmd.Execute()
}
