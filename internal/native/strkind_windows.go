package native

// NativeString is the kind of a plain "Str" argument: UTF-16 on Windows
const NativeString = KindWStr

// ForeignString is the other string width, transcoded for each call
const ForeignString = KindAStr
