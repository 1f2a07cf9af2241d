package main

import (
	"context"
	"os"

	"github.com/consol-monitoring/check_ldap_consistency/pkg/checkldapconsistency"
)

func main() {
	os.Exit(checkldapconsistency.Check(context.Background(), os.Stdout, os.Args[1:]))
}
