//go:build tinygo

package mcu

import "errors"

var errNoPin = errors.New("mcu: no such pin")
