package main

import "options-analytics/cmd"

func main() {
	cmd.Execute()
}
