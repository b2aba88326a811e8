package main

import "time"

// ServeFlags Flag structs to decouple cobra from logic for testing.
type ServeFlags struct {
	ConfigPath string
	Listen     string
	BaseDir    string
}

// RemoteFlags configure commands that talk to a running agent.
type RemoteFlags struct {
	APIUrl     string
	APITimeout time.Duration
	File       string
}
