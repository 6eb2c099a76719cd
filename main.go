package main

import (
	"log"
)

// Build details, set with -ldflags "-X main.GitCommit=... -X main.GitTag=... -X main.BuildTime=...".
var (
	GitCommit string
	GitTag    string
	BuildTime string
)

func main() {
	app, err := NewApp()
	if err != nil {
		log.Fatal("library api failed to initialize: ", err)
	}
	if err = app.Run(); err != nil {
		log.Fatal("library api exited. check logs for more details: ", err)
	}
}
