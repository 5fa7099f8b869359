package main

import "github.com/lu-zhengda/loreterm/internal/cli"

func main() {
	cli.Execute()
}
