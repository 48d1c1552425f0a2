// Package logtag centralizes the bracketed severity tags used throughout
// the crawler's log.Printf calls (e.g. "[!] retry", "[+] downloaded").
package logtag

const (
	Info = "[...]"
	OK   = "[+]"
	Warn = "[!]"
	Drop = "[-]"
)
