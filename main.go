package main

import "github.com/neo/rapport_backend/cmd"

func main() {
	cmd.Execute()
}
