package main

import (
	"embed"
	"io/fs"
)

// The ui directory holds the companion web UI. Release builds replace it with the compiled bundle.
//
//go:embed all:ui
var uiDist embed.FS

func uiFS() fs.FS {
	sub, err := fs.Sub(uiDist, "ui")
	if err != nil {
		return nil
	}
	return sub
}
