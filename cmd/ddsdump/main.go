// Copyright 2021 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// ddsdump inspects a descriptor bundle (internal/blobio) produced by idlc,
// listing or dumping its named blobs. Modeled on cmd/pedumper.go's cobra
// subcommand layout.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/blobio"
)

var (
	verbose bool
	names   []string
)

func isDirectory(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func dumpBundle(path string) {
	log.Printf("opening bundle %s", path)

	b, err := blobio.Open(path, blobio.Options{})
	if err != nil {
		log.Printf("error opening bundle %s: %s", path, err)
		return
	}
	defer b.Close()

	if len(names) == 0 {
		for _, e := range b.Entries() {
			fmt.Printf("%s\t%d bytes\n", e.Name, e.Length)
		}
		return
	}
	for _, name := range names {
		blob, ok := b.Lookup(name)
		if !ok {
			log.Printf("%s: no such blob %q", path, name)
			continue
		}
		fmt.Printf("%s:\n%s\n", name, blob)
	}
}

func dump(cmd *cobra.Command, args []string) {
	target := args[0]
	if !isDirectory(target) {
		dumpBundle(target)
		return
	}
	filepath.Walk(target, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() && filepath.Ext(path) == ".cddsbundle" {
			dumpBundle(path)
		}
		return nil
	})
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "ddsdump",
		Short: "Inspect compiled descriptor bundles",
		Long:  "ddsdump lists or prints the named blobs inside a cyclonedds-sub015 descriptor bundle",
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("ddsdump version 1.0.0")
		},
	}

	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Dump a bundle file or directory of bundle files",
		Args:  cobra.MinimumNArgs(1),
		Run:   dump,
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(dumpCmd)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	dumpCmd.Flags().StringSliceVarP(&names, "blob", "b", nil, "named blob(s) to print; default lists all")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
