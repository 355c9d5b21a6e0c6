package util

import "strings"

// Key builds "<app>.<subsystem>:<id>".
func Key(app, subsystem, id string) string {
	var b strings.Builder
	b.Grow(len(app) + 1 + len(subsystem) + 1 + len(id))
	b.WriteString(app)
	b.WriteByte('.')
	b.WriteString(subsystem)
	b.WriteByte(':')
	b.WriteString(id)
	return b.String()
}

// Prefix is the part of Key shared by every id of one subsystem: "<app>.<subsystem>:".
func Prefix(app, subsystem string) string {
	return app + "." + subsystem + ":"
}
