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


package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/require"

	"seehuhn.de/go/annotate/annotation"
	"seehuhn.de/go/annotate/information"
	"seehuhn.de/go/annotate/processor"
)

// writeTestFile creates a PDF file with the given number of pages and
// an outline.  Every page shows "alpha beta alpha" and the page number.
func writeTestFile(t *testing.T, dir string, pages int, password string) string {
	t.Helper()

	doc := fpdf.New("P", "mm", "A4", "")
	if password != "" {
		doc.SetProtection(fpdf.CnProtectPrint|fpdf.CnProtectCopy, password, password+"-owner")
	}
	for i := range pages {
		doc.AddPage()
		doc.SetFont("Helvetica", "", 12)
		doc.Bookmark(fmt.Sprintf("Section %d", i+1), 0, 0)
		doc.Text(20, 30, fmt.Sprintf("alpha beta alpha %d", i+1))
	}
	fname := filepath.Join(dir, "test.pdf")
	require.NoError(t, doc.OutputFileAndClose(fname))
	return fname
}

type testCLI struct {
	t      *testing.T
	config string
}

func newTestCLI(t *testing.T, dir string) *testCLI {
	config := filepath.Join(dir, "config.toml")
	data := "author = \"Tester\"\n\n[log]\nlevel = \"error\"\n"
	require.NoError(t, os.WriteFile(config, []byte(data), 0o644))
	return &testCLI{t: t, config: config}
}

// run executes a command line and returns its standard output.
func (c *testCLI) run(args ...string) (string, error) {
	c.t.Helper()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	args = append([]string{"-config", c.config}, args...)
	err := run(context.Background(), args, strings.NewReader(""), stdout, stderr)
	return stdout.String(), err
}

func (c *testCLI) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, "pdf-annotate %s", strings.Join(args, " "))
	return out
}

func TestWorkflow(t *testing.T) {
	dir := t.TempDir()
	fname := writeTestFile(t, dir, 2, "")
	cli := newTestCLI(t, dir)

	out := cli.mustRun("process", fname)
	require.Contains(t, out, "2 pages")
	require.FileExists(t, information.PathFor(fname))

	out = cli.mustRun("info", fname)
	require.Contains(t, out, "processed:   yes")
	require.Contains(t, out, "modified:    no")
	require.Contains(t, out, "version:     0x00050000")

	out = cli.mustRun("outline", fname)
	require.Contains(t, out, "Section 2 (page 2)")

	id := strings.TrimSpace(cli.mustRun("note", "-page", "2", "-at", "0.5,0.5", fname, "hello", "world"))
	require.NotEmpty(t, id)

	out = cli.mustRun("highlight", "-page", "1", fname, "alpha")
	require.Equal(t, "2 occurrences marked\n", out)

	cli.mustRun("bookmark", "-page", "2", "-y", "0.25", fname, "read later")

	out = cli.mustRun("list", fname)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	require.Contains(t, out, id)
	require.Contains(t, out, `"Tester: hello world"`)

	out = cli.mustRun("list", "-page", "1", fname)
	require.Equal(t, 2, strings.Count(out, "highlight"))

	out = cli.mustRun("search", "-annotations", fname, "hello")
	require.Contains(t, out, "page 2 (note): [hello] world")

	out = cli.mustRun("search", fname, "beta")
	require.Equal(t, 2, strings.Count(out, "[beta]"))

	dest := filepath.Join(dir, "out.pdf")
	cli.mustRun("write", "-validate", fname, dest)
	_, err := cli.run("write", fname, dest)
	require.ErrorContains(t, err, "already exists")

	cli.mustRun("process", dest)
	out = cli.mustRun("list", dest)
	require.Contains(t, out, id)
	require.Contains(t, out, `"read later"`)

	cli.mustRun("sync", fname)
	out = cli.mustRun("info", fname)
	require.Contains(t, out, "modified:    no")
	require.Contains(t, out, "annotations: 3")

	out = cli.mustRun("sync", fname)
	require.Equal(t, "no changes\n", out)

	cli.mustRun("remove", "-id", id, fname)
	out = cli.mustRun("list", fname)
	require.NotContains(t, out, id)

	cli.mustRun("remove", "-all", fname)
	out = cli.mustRun("list", fname)
	require.Empty(t, out)
}

func TestProcessOnDemand(t *testing.T) {
	dir := t.TempDir()
	fname := writeTestFile(t, dir, 1, "")
	cli := newTestCLI(t, dir)

	// commands which need the information file process the PDF file first
	out := cli.mustRun("search", fname, "alpha")
	require.Equal(t, 2, strings.Count(out, "[alpha]"))

	_, err := cli.run("process", "-strict", fname)
	require.ErrorIs(t, err, &processor.Error{Code: processor.AlreadyProcessed})
	cli.mustRun("process", "-force", fname)
}

func TestPassword(t *testing.T) {
	dir := t.TempDir()
	fname := writeTestFile(t, dir, 1, "secret")
	cli := newTestCLI(t, dir)

	_, err := cli.run("process", fname)
	require.ErrorIs(t, err, &processor.Error{Code: processor.InvalidDocumentPassword})

	out := cli.mustRun("-p", "secret", "process", fname)
	require.Contains(t, out, "1 pages")

	// writing a copy needs the owner password
	dest := filepath.Join(dir, "out.pdf")
	_, err = cli.run("-p", "secret", "write", fname, dest)
	require.ErrorIs(t, err, &processor.Error{Code: processor.Permissions})
	require.NoFileExists(t, dest)
	cli.mustRun("-p", "secret-owner", "write", fname, dest)
	require.FileExists(t, dest)
}

func TestUsage(t *testing.T) {
	dir := t.TempDir()
	cli := newTestCLI(t, dir)

	_, err := cli.run()
	require.Error(t, err)
	_, err = cli.run("frobnicate")
	require.ErrorContains(t, err, "unknown command")
	_, err = cli.run("remove", "-all", "-page", "1", "x.pdf")
	require.ErrorContains(t, err, "exactly one")
	_, err = cli.run("list", filepath.Join(dir, "missing.pdf"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestConfig(t *testing.T) {
	cfg := defaultConfig()
	data := `
author = "Jane Doe"

[processor]
workers = 2
producer = "test"

[search]
max_results = 10
language = "de"

[log]
level = "debug"
format = "json"
`
	require.NoError(t, parseConfig([]byte(data), cfg))
	require.Equal(t, "Jane Doe", cfg.Author)
	require.Equal(t, 2, cfg.Processor.Workers)
	require.Equal(t, "test", cfg.Processor.Producer)
	require.Equal(t, 10, cfg.Search.MaxResults)
	require.Equal(t, "de", cfg.Search.language().String())
	require.Equal(t, "json", cfg.Log.Format)

	bad := []string{
		"[log]\nlevel = \"loud\"\n",
		"[processor]\nworkers = -1\n",
		"[search]\nlanguage = \"not a language\"\n",
		"colour = \"red\"\n",
		"author = \n",
	}
	for _, data := range bad {
		require.Error(t, parseConfig([]byte(data), defaultConfig()), data)
	}

	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.Equal(t, defaultConfig(), cfg)
	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestParseColor(t *testing.T) {
	col, err := parseColor("#ff8000")
	require.NoError(t, err)
	require.InDeltaSlice(t, []float64{1, 128.0 / 255, 0}, col.Values[:3], 1e-9)
	require.Equal(t, annotation.ColorRGB, col.Space)

	col, err = parseColor("Yellow")
	require.NoError(t, err)
	require.Equal(t, annotation.RGB(1, 1, 0), col)

	for _, s := range []string{"", "#ff80", "#gg0000", "purple"} {
		_, err := parseColor(s)
		require.Error(t, err, s)
	}
}

func TestParsePageRange(t *testing.T) {
	cases := []struct {
		in   string
		want processor.PageRange
		ok   bool
	}{
		{"1", processor.PageRange{First: 0, Count: 1}, true},
		{"2-4", processor.PageRange{First: 1, Count: 3}, true},
		{"0-3", processor.PageRange{}, false},
		{"4-2", processor.PageRange{}, false},
		{"x", processor.PageRange{}, false},
	}
	for _, c := range cases {
		got, err := parsePageRange(c.in)
		if !c.ok {
			require.Error(t, err, c.in)
			continue
		}
		require.NoError(t, err, c.in)
		require.Equal(t, c.want, got)
	}
}

func TestParsePoint(t *testing.T) {
	p, err := parsePoint("0.25, 0.75")
	require.NoError(t, err)
	require.Equal(t, 0.25, p.X)
	require.Equal(t, 0.75, p.Y)

	for _, s := range []string{"0.5", "a,b", "1.5,0", "0,-1"} {
		_, err := parsePoint(s)
		require.Error(t, err, s)
	}
}
