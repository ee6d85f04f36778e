// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Command asmbench measures how well an assembly line batches commits by
// appending records to a write-ahead log from many goroutines and reporting
// how many syncs they took.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
