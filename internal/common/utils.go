// Package common holds functions and structs that are used throughout all
// other packages in this repository: the shared domain model (tool
// descriptors, routing decisions, server state), gateway errors, trace
// correlation, and small utilities with no better home.
package common

import "os"

// GetCurrentWorkingDir gets the current working directory, or "" if it
// cannot be resolved.
func GetCurrentWorkingDir() string {
	pwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return pwd
}
