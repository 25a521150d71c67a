// seehuhn.de/go/annotate - persistent annotations for PDF documents
// Copyright (C) 2026  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


// Command pdf-annotate manages the annotations of PDF files.
//
// A PDF file is first processed into an information file, stored next to
// the PDF file with the suffix ".metadata".  Annotations are then added,
// listed and removed using the information file alone, and are written
// back into the PDF file by the "sync" command, or into a new file by
// the "write" command.
//
// Page numbers on the command line start at 1.  Positions on a page are
// given in page-space: x and y range from 0 to 1, starting at the top
// left corner of the visible page area.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"

	"seehuhn.de/go/annotate/internal/buildinfo"
)

// command is one of the sub-commands of the tool.
type command struct {
	name    string
	args    string
	summary string
	run     func(e *env, args []string) error
}

// commands is filled in by init, since the commands themselves look up
// their entries through findCommand.
var commands []*command

func init() {
	commands = []*command{
		{"process", "[-force] [-strict] file.pdf", "extract text, annotations and outline into the information file", cmdProcess},
		{"info", "file.pdf", "show the state of the information file", cmdInfo},
		{"list", "[-page n] file.pdf", "list the annotations", cmdList},
		{"note", "-page n -at x,y [-color c] file.pdf text", "add a sticky note", cmdNote},
		{"highlight", "[-page n] [-type t] [-color c] file.pdf query", "mark all occurrences of a text", cmdHighlight},
		{"bookmark", "-page n [-y y] file.pdf name", "add a bookmark", cmdBookmark},
		{"remove", "(-id id | -page n | -all) file.pdf", "remove annotations", cmdRemove},
		{"search", "[-regexp] [-case] [-annotations] [-backward] [-max n] file.pdf query", "search the text of the document", cmdSearch},
		{"outline", "file.pdf", "show the document outline and the bookmarks", cmdOutline},
		{"sync", "file.pdf", "write annotation changes back into the PDF file", cmdSync},
		{"write", "[-flatten] [-strip] [-annotated] [-pages a-b] [-validate] [-f] file.pdf out.pdf", "write an annotated copy", cmdWrite},
	}
}

func findCommand(name string) *command {
	idx := slices.IndexFunc(commands, func(c *command) bool { return c.name == name })
	if idx < 0 {
		return nil
	}
	return commands[idx]
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "%s\n\n", buildinfo.Short("pdf-annotate"))
	fmt.Fprintf(w, "Usage:\n")
	fmt.Fprintf(w, "  pdf-annotate [options] <command> [arguments]\n\n")
	fmt.Fprintf(w, "Options:\n")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintf(w, "\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(w, "\nUse \"pdf-annotate <command> -h\" to show the arguments of a command.\n")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "pdf-annotate:", err)
		os.Exit(1)
	}
}

// run executes the command line given in args.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("pdf-annotate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFile := fs.String("config", defaultConfigFile(), "read settings from `file`")
	password := fs.String("p", "", "PDF password")
	verbose := fs.Bool("v", false, "log debug messages")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			usage(stdout, fs)
		}
		return err
	}
	if fs.NArg() < 1 {
		usage(stderr, fs)
		return errors.New("missing command")
	}

	name := fs.Arg(0)
	cmd := findCommand(name)
	if cmd == nil {
		return fmt.Errorf("unknown command %q", name)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return err
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}

	e, err := newEnv(ctx, cfg, stdin, stdout, stderr)
	if err != nil {
		return err
	}
	e.password = *password
	return cmd.run(e, fs.Args()[1:])
}

// newFlags returns the flag set for a command.
func (e *env) newFlags(name string) *flag.FlagSet {
	cmd := findCommand(name)
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		fmt.Fprintf(e.stderr, "Usage: pdf-annotate %s %s\n\n%s.\n", cmd.name, cmd.args, cmd.summary)
		var hasFlags bool
		fs.VisitAll(func(*flag.Flag) { hasFlags = true })
		if hasFlags {
			fmt.Fprintf(e.stderr, "\nOptions:\n")
			fs.PrintDefaults()
		}
	}
	return fs
}

// parseArgs parses the flags of a command and checks the number of
// positional arguments.  The first positional argument is always the
// name of a PDF file.
func parseArgs(fs *flag.FlagSet, args []string, n int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	rest := fs.Args()
	if len(rest) != n {
		fs.Usage()
		return nil, fmt.Errorf("%s: expected %d argument(s), got %d", fs.Name(), n, len(rest))
	}
	return rest, nil
}

// parseText is like parseArgs for commands which take a file name
// followed by a text.  The words of the text may be given as separate
// arguments.
func parseText(fs *flag.FlagSet, args []string) (fname, text string, err error) {
	if err := fs.Parse(args); err != nil {
		return "", "", err
	}
	rest := fs.Args()
	if len(rest) < 2 {
		fs.Usage()
		return "", "", fmt.Errorf("%s: missing arguments", fs.Name())
	}
	return rest[0], strings.Join(rest[1:], " "), nil
}
