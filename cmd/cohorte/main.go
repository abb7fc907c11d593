package main

import "cohorte/api/internal/cli"

func main() {
	cli.Execute()
}
