package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// ControlFlags Flag structs to decouple cobra from logic for testing.
type ControlFlags struct {
	Detailed bool // status only: print the full snapshot
	// Remote daemon connection
	APIUrl     string
	APITimeout time.Duration
}

type ServeFlags struct {
	ConfigPath string
}

type LogsFlags struct {
	ConfigPath string
	Latest     bool // print the newest run log instead of listing
}
