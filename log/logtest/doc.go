/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest provides a log.FieldLogger implementation that records
// logged entries so tests can assert on them.
package logtest
