package main

import "github.com/jetstack/jwks-resolver/cmd"

func main() {
	cmd.Execute()
}
