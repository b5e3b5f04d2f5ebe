package main

import (
	"fmt"
	"os"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
	"github.com/contaconmigo/contaconmigo-go/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, contaconmigo.UserMessage(err))
		os.Exit(1)
	}
}
