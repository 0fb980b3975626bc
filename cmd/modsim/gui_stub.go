//go:build !gui

package main

import (
	"context"
	"errors"
)

var errNoDesktop = errors.New("desktop front-end not available, rebuild with -tags gui")

func runDesktop(context.Context, *simulator) error {
	return errNoDesktop
}
