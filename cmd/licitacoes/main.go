package main

import "github.com/david/licitacoes/internal/cli"

func main() {
	cli.Execute()
}
