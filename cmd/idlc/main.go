// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// idlc compiles a pre-parsed IDL AST ("pstate", spec.md §1) into a
// descriptor bundle written out via internal/blobio: a text summary of the
// compiled descriptor (internal/descriptor: type and instruction counts, key
// sizes, flags) and the TypeInformation/TypeMapping blobs
// (internal/typemeta). The op stream itself is not written to the bundle. Lexing/parsing IDL source text
// itself is out of scope (spec.md Non-goals); the input is the JSON pstate
// description internal/astjson decodes.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/astjson"
	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/blobio"
	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/descriptor"
	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/log"
	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/typemeta"
)

func main() {
	compileCmd := flag.NewFlagSet("compile", flag.ExitOnError)
	inPath := compileCmd.String("in", "", "JSON-encoded pstate AST root node")
	outPath := compileCmd.String("out", "out.cddsbundle", "output descriptor bundle path")
	verbose := compileCmd.Bool("verbose", false, "log compile progress")

	verCmd := flag.NewFlagSet("version", flag.ExitOnError)

	if len(os.Args) < 2 {
		showHelp()
	}

	switch os.Args[1] {
	case "compile":
		compileCmd.Parse(os.Args[2:])
		if *inPath == "" {
			fmt.Fprintln(os.Stderr, "idlc compile: -in is required")
			os.Exit(1)
		}
		if err := compile(*inPath, *outPath, *verbose); err != nil {
			fmt.Fprintln(os.Stderr, "idlc compile:", err)
			os.Exit(1)
		}
	case "version":
		verCmd.Parse(os.Args[2:])
		fmt.Println("idlc (cyclonedds-sub015) version 1.0.0")
	default:
		showHelp()
	}
}

func compile(inPath, outPath string, verbose bool) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return err
	}
	root, err := astjson.Decode(data)
	if err != nil {
		return fmt.Errorf("decode pstate: %w", err)
	}

	var logger log.Logger
	if verbose {
		logger = log.NewStdLogger(os.Stderr)
	}

	emitter := descriptor.NewEmitter(descriptor.Options{Logger: logger})
	desc, err := emitter.Compile(root)
	if err != nil {
		return fmt.Errorf("emit ops: %w", err)
	}

	builder := typemeta.NewBuilder(typemeta.Options{Logger: logger})
	info, mapping, err := builder.Build(root)
	if err != nil {
		return fmt.Errorf("build type-meta: %w", err)
	}
	typeInformation, typeMapping := builder.Encode(info, mapping)

	blobs := map[string][]byte{
		"descriptor.summary": []byte(fmt.Sprintf(
			"constructed_types=%d keys=%d keysz_xcdr1=%d keysz_xcdr2=%d flags=%d",
			len(desc.ConstructedTypes), len(desc.Keys), desc.KeySizeXCDR1, desc.KeySizeXCDR2, desc.Flags)),
		"typeinformation": typeInformation,
		"typemapping":     typeMapping,
	}
	if err := blobio.Write(outPath, blobs); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	return nil
}

func showHelp() {
	fmt.Print(
		`
┬┌┬┐┬  ┌─┐
│ │││  │
┴─┴┘┴─┘└─┘

	The IDL-to-descriptor compiler for cyclonedds-sub015.
`)
	fmt.Println("\nAvailable sub-commands: 'compile' or 'version'")
	os.Exit(1)
}
