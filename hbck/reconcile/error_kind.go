package reconcile

import (
	"fmt"
)

// ErrorKind is the machine readable code of an inconsistency.
type ErrorKind int

const (
	UNKNOWN ErrorKind = iota
	MISSING_EVERYWHERE
	NOT_IN_CATALOG
	NOT_ON_FILESYSTEM
	NOT_IN_CATALOG_OR_FILESYSTEM
	NOT_DEPLOYED
	DUPLICATE_DEPLOYMENT
	SERVER_MISMATCH
	HOLE_IN_KEYSPACE
	OVERLAPPING_REGIONS
	BAD_DESCRIPTOR
	DEGENERATE_REGION_DIR
	SCAN_FAILURE
	PARTIAL_COMMIT
)

var errorKindNames = []string{
	UNKNOWN:                      "UNKNOWN",
	MISSING_EVERYWHERE:           "MISSING_EVERYWHERE",
	NOT_IN_CATALOG:               "NOT_IN_CATALOG",
	NOT_ON_FILESYSTEM:            "NOT_ON_FILESYSTEM",
	NOT_IN_CATALOG_OR_FILESYSTEM: "NOT_IN_CATALOG_OR_FILESYSTEM",
	NOT_DEPLOYED:                 "NOT_DEPLOYED",
	DUPLICATE_DEPLOYMENT:         "DUPLICATE_DEPLOYMENT",
	SERVER_MISMATCH:              "SERVER_MISMATCH",
	HOLE_IN_KEYSPACE:             "HOLE_IN_KEYSPACE",
	OVERLAPPING_REGIONS:          "OVERLAPPING_REGIONS",
	BAD_DESCRIPTOR:               "BAD_DESCRIPTOR",
	DEGENERATE_REGION_DIR:        "DEGENERATE_REGION_DIR",
	SCAN_FAILURE:                 "SCAN_FAILURE",
	PARTIAL_COMMIT:               "PARTIAL_COMMIT",
}

func (k ErrorKind) String() string {
	if k >= 0 && int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

func ParseErrorKind(name string) (ErrorKind, error) {
	for k, n := range errorKindNames {
		if n == name {
			return ErrorKind(k), nil
		}
	}
	return UNKNOWN, fmt.Errorf("unknown error kind %q", name)
}

func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ErrorKind) UnmarshalText(text []byte) (err error) {
	*k, err = ParseErrorKind(string(text))
	return
}

// Irrecoverable kinds have no durable evidence a rebuild could use.
func (k ErrorKind) Irrecoverable() bool {
	return k == MISSING_EVERYWHERE || k == NOT_IN_CATALOG_OR_FILESYSTEM
}
