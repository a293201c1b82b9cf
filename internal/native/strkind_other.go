//go:build !windows

package native

// NativeString is the kind of a plain "Str" argument: UTF-8 char* here
const NativeString = KindAStr

// ForeignString is the other string width, transcoded for each call
const ForeignString = KindWStr
