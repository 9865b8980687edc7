package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()

	app.Version = "0.1.0"
	app.Name = "kiosk operator CLI"
	app.Usage = "Command line interface for kioskd daemon operators"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:  "addr",
			Usage: "address of the kioskd admin interface",
			Value: "http://127.0.0.1:9137",
		},
	}
	app.Commands = append(
		app.Commands,
		&status,
		&listorders,
		&getorder,
		&shiporder,
		&deliverorder,
		&retrycommission,
	)

	err := app.Run(os.Args)
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[kiosk] %v\n", err)
	os.Exit(1)
}
