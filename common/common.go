// Package common holds identifiers shared by every binary.
package common

// PackageName prefixes metric names and identifies the software in logs.
const PackageName = "tokenring"
