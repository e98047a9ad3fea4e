// Copyright 2018 Brett Vickers. All rights reserved.
// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/beevik/term"
	"github.com/llmp16/llmp16/host"
	log "github.com/sirupsen/logrus"
)

var (
	assemble string
	logLevel string
	verbose  bool
)

func init() {
	flag.StringVar(&assemble, "a", "", "assemble file")
	flag.StringVar(&logLevel, "log", "warning", "log level (trace, debug, info, warning, error)")
	flag.BoolVar(&verbose, "v", false, "verbose logging (same as -log debug)")
	flag.CommandLine.Usage = func() {
		fmt.Println("Usage: llmp16 [script] ..\nOptions:")
		flag.PrintDefaults()
	}
}

func main() {
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	log.SetOutput(os.Stderr)
	lvl, err := log.ParseLevel(logLevel)
	if err != nil {
		exitOnError(err)
	}
	if verbose && lvl < log.DebugLevel {
		lvl = log.DebugLevel
	}
	log.SetLevel(lvl)

	h := host.New()

	// Do command-line assemble if requested.
	if assemble != "" {
		err := h.AssembleFile(assemble)
		if err != nil {
			fmt.Printf("Failed to assemble file '%s': %v\n", assemble, err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Run commands contained in command-line files. Files with a .lua
	// extension are run as scripts.
	for _, filename := range flag.Args() {
		if strings.EqualFold(filepath.Ext(filename), ".lua") {
			err := h.RunScript(filename)
			switch {
			case errors.Is(err, host.ErrQuit):
				os.Exit(0)
			case err != nil:
				exitOnError(err)
			}
			continue
		}

		file, err := os.Open(filename)
		if err != nil {
			exitOnError(err)
		}
		h.RunCommands(file, os.Stdout, false)
		file.Close()
	}

	// Break on Ctrl-C.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go handleInterrupt(h, c)

	// Run commands interactively.
	h.RunCommands(os.Stdin, os.Stdout, term.IsTerminal(int(os.Stdin.Fd())))
}

func handleInterrupt(h *host.Host, c chan os.Signal) {
	for {
		<-c
		h.Break()
	}
}

func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
