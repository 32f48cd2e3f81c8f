// Package main is the sift3d command itself.
package main

import (
	"log"
	"os"

	"go.viam.com/sift3d/cli"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
