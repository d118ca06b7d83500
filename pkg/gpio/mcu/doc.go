// Package mcu provides gpio.Board on microcontrollers through the TinyGo
// machine package.
//
// Pin interrupts only record the edge, with the pin level and the level of
// a latched pin, in a ring buffer. A dispatcher
// goroutine started by Open calls the handlers outside interrupt context,
// in the order the edges happened.
//
// The package is empty unless built with TinyGo.
package mcu
