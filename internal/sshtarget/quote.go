package sshtarget

import (
	"regexp"
	"strings"
)

var safeWord = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// quote returns s as a single POSIX shell word.
func quote(s string) string {
	if s == "" {
		return "''"
	}
	if safeWord.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// quotePath quotes a path but leaves a leading "~/" for the remote shell to
// expand.
func quotePath(p string) string {
	if p == "~" {
		return p
	}
	if strings.HasPrefix(p, "~/") {
		return "~/" + quote(p[2:])
	}
	return quote(p)
}

// commandLine renders the shell line executed by a remote session.
func commandLine(dir, name string, args []string) string {
	var b strings.Builder
	if dir != "" {
		b.WriteString("cd ")
		b.WriteString(quotePath(dir))
		b.WriteString(" && ")
	}
	b.WriteString(quote(name))
	for _, arg := range args {
		b.WriteByte(' ')
		b.WriteString(quote(arg))
	}
	return b.String()
}
