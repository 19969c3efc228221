package viewer

import "github.com/atotto/clipboard"

// systemClipboard talks to the platform clipboard utilities. All errors
// are surfaced to callers, which swallow them; a missing clipboard tool
// must never break browsing.
type systemClipboard struct{}

func (systemClipboard) ReadAll() (string, error) { return clipboard.ReadAll() }
func (systemClipboard) WriteAll(s string) error  { return clipboard.WriteAll(s) }

// SystemClipboard returns the platform clipboard.
func SystemClipboard() Clipboard { return systemClipboard{} }
