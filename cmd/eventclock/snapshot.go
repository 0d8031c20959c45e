package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"eventclock/internal/capture"
)

var (
	snapshotURL    string
	snapshotOut    string
	snapshotWidth  int
	snapshotHeight int

	snapshotFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "url",
			Usage:       "board page to capture (default: http://<listen>/board)",
			Destination: &snapshotURL,
		},
		cli.StringFlag{
			Name:        "out, o",
			Usage:       "output PNG path",
			Value:       "board.png",
			Destination: &snapshotOut,
		},
		cli.IntFlag{
			Name:        "width",
			Value:       capture.DefaultWidth,
			Destination: &snapshotWidth,
		},
		cli.IntFlag{
			Name:        "height",
			Value:       capture.DefaultHeight,
			Destination: &snapshotHeight,
		},
	}
)

func snapshot(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}
	url := snapshotURL
	if url == "" {
		url = "http://" + conf.Listen + "/board"
	}

	opts := capture.Options{
		URL:        url,
		OutputPath: snapshotOut,
		Width:      snapshotWidth,
		Height:     snapshotHeight,
	}
	if conf.BasicAuth != nil {
		opts.Username = conf.BasicAuth.Username
		opts.Password = conf.BasicAuth.Password
	}
	if err := capture.BoardPNG(context.Background(), opts); err != nil {
		return err
	}
	info, err := os.Stat(snapshotOut)
	if err != nil {
		return err
	}
	fmt.Printf("saved %s (%s)\n", snapshotOut, humanize.Bytes(uint64(info.Size())))
	return nil
}
