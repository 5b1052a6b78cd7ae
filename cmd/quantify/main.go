package main

import "github.com/MuhibNayem/quantify-go/cmd/quantify/cmd"

func main() {
	cmd.Execute()
}
