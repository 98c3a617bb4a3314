// Package line provides protocol.Line implementations: GPIO backends for
// periph.io and go-rpio, and Fake, a line-level model of the HX711 used by
// tests.
package line
