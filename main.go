package main

import "github.com/relloyd/sunglass-etl/cmd"

func main() {
	cmd.Execute()
}
