//go:build !windows

package dll

// ANSICharset returns the charset AStr arguments are encoded in. AStr is
// the native string width here and always UTF-8.
func ANSICharset(string) string {
	return "utf-8"
}
