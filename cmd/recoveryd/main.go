package main

import "github.com/boucer/prospek360-recovery-engine/internal/cli"

func main() {
	cli.Execute()
}
