package ui

import "golang.org/x/term"

// IsTTY reports whether fd is attached to a terminal.
func IsTTY(fd uintptr) bool { return term.IsTerminal(int(fd)) }

// TermWidth returns the column count of the terminal behind fd. Pipes and
// redirections fall back to the conventional 80.
func TermWidth(fd uintptr) int {
	if w, _, err := term.GetSize(int(fd)); err == nil && w > 0 {
		return w
	}
	return 80
}
