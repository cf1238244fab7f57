// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command elm-wrap wraps the Elm compiler with an independent package
// resolver, cache and registry manager.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/elmwrap/wrap"
)

type command interface {
	Name() string           // "install"
	Args() string           // "[PACKAGE[@VERSION]]"
	ShortHelp() string      // "Install a package"
	LongHelp() string       // multi-line description
	Register(*flag.FlagSet) // command-specific flags
	Hidden() bool           // omit from help output
	Run(*wrap.Ctx, []string) error
}

func main() {
	c := &Config{
		Args:   os.Args,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	os.Exit(c.Run())
}

// A Config specifies a full configuration for an elm-wrap execution.
type Config struct {
	Args           []string
	Stdout, Stderr io.Writer
}

// Run executes a configuration and returns an exit code.
func (c *Config) Run() (exitCode int) {
	commands := []command{
		&installCommand{},
		&upgradeCommand{},
		&removeCommand{},
		&packageCommand{},
		&repositoryCommand{},
		&versionCommand{},
	}

	examples := [][2]string{
		{"elm-wrap install elm/http", "add a dependency to the project"},
		{"elm-wrap upgrade", "move every dependency to its newest minor"},
		{"elm-wrap package cache download-all", "fill the local package cache"},
		{"elm-wrap repository mirror --output-dir ./mirror", "mirror the registry"},
	}

	outLogger := log.New(c.Stdout, "", 0)
	errLogger := log.New(c.Stderr, "", 0)

	usage := func() {
		errLogger.Println("elm-wrap manages Elm packages without the compiler's installer")
		errLogger.Println()
		errLogger.Println("Usage: elm-wrap <command>")
		errLogger.Println()
		errLogger.Println("Commands:")
		errLogger.Println()
		w := tabwriter.NewWriter(c.Stderr, 0, 4, 2, ' ', 0)
		for _, cmd := range commands {
			if !cmd.Hidden() {
				fmt.Fprintf(w, "\t%s\t%s\n", cmd.Name(), cmd.ShortHelp())
			}
		}
		w.Flush()
		errLogger.Println()
		errLogger.Println("Examples:")
		for _, example := range examples {
			fmt.Fprintf(w, "\t%s\t%s\n", example[0], example[1])
		}
		w.Flush()
		errLogger.Println()
		errLogger.Println("Use \"elm-wrap help [command]\" for more information about a command.")
	}

	cmdName, printCommandHelp, exit := parseArgs(c.Args)
	if exit {
		usage()
		return 1
	}

	for _, cmd := range commands {
		if cmd.Name() != cmdName {
			continue
		}

		fs := flag.NewFlagSet(cmdName, flag.ContinueOnError)
		fs.SetOutput(c.Stderr)
		verbose := fs.Bool("v", false, "enable verbose logging")
		cmd.Register(fs)

		resetUsage(errLogger, fs, cmdName, cmd.Args(), cmd.LongHelp())
		if printCommandHelp {
			fs.Usage()
			return 1
		}

		if err := fs.Parse(c.Args[2:]); err != nil {
			return 1
		}

		ctx, err := wrap.NewContext(outLogger, errLogger)
		if err != nil {
			errLogger.Printf("elm-wrap: %v\n", err)
			return 1
		}
		ctx.Verbose = *verbose

		if err := cmd.Run(ctx, fs.Args()); err != nil {
			errLogger.Printf("%v\n", err)
			return 1
		}
		return 0
	}

	errLogger.Printf("elm-wrap: %s: no such command\n", cmdName)
	usage()
	return 1
}

func resetUsage(logger *log.Logger, fs *flag.FlagSet, name, args, longHelp string) {
	var (
		hasFlags   bool
		flagBlock  bytes.Buffer
		flagWriter = tabwriter.NewWriter(&flagBlock, 0, 4, 2, ' ', 0)
	)
	fs.VisitAll(func(f *flag.Flag) {
		hasFlags = true
		defValue := f.DefValue
		if defValue == "" {
			defValue = "<none>"
		}
		fmt.Fprintf(flagWriter, "\t-%s\t%s (default: %s)\n", f.Name, f.Usage, defValue)
	})
	flagWriter.Flush()
	fs.Usage = func() {
		logger.Printf("Usage: elm-wrap %s %s\n", name, args)
		logger.Println()
		logger.Println(strings.TrimSpace(longHelp))
		logger.Println()
		if hasFlags {
			logger.Println("Flags:")
			logger.Println()
			logger.Println(flagBlock.String())
		}
	}
}

// parseArgs determines the command name and whether the user asked for
// help.
func parseArgs(args []string) (cmdName string, printCmdUsage bool, exit bool) {
	isHelpArg := func() bool {
		return strings.Contains(strings.ToLower(args[1]), "help") || strings.ToLower(args[1]) == "-h"
	}

	switch len(args) {
	case 0, 1:
		exit = true
	case 2:
		if isHelpArg() {
			exit = true
		}
		cmdName = args[1]
	default:
		if isHelpArg() {
			cmdName = args[2]
			printCmdUsage = true
		} else {
			cmdName = args[1]
		}
	}
	return cmdName, printCmdUsage, exit
}
