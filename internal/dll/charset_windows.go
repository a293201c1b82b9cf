package dll

// ANSICharset returns the charset AStr arguments are encoded in: the
// configured ANSI code page
func ANSICharset(configured string) string {
	return configured
}
