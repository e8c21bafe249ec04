package main

import "fmt"

var (
	errMissingCollectionID = fmt.Errorf("-collection is required")
	errMissingCollections  = fmt.Errorf("collections.path must be set to serve")
	errMissingKeys         = fmt.Errorf("at least one key is required")
)

func errUnexpectedArgs(args []string) error {
	return fmt.Errorf("unexpected arguments: %v", args)
}
