package macho

import (
	"path"
	"strings"
)

// ShortName guesses the short name of a framework or library install name the way the
// dynamic linker matches LC_SUB_UMBRELLA and LC_SUB_LIBRARY names.
//
//	/System/Library/Frameworks/Foo.framework/Versions/A/Foo -> Foo, true
//	/System/Library/Frameworks/Foo.framework/Foo_debug      -> Foo, true
//	/usr/lib/libfoo.A.dylib                                  -> libfoo, false
//	/usr/lib/libfoo_profile.dylib                            -> libfoo, false
func ShortName(installName string) (name string, framework bool) {
	if n, ok := frameworkName(installName); ok {
		return n, true
	}
	return libraryName(installName), false
}

func stripSuffix(s string) string {
	for _, suffix := range []string{"_debug", "_profile"} {
		if strings.HasSuffix(s, suffix) {
			return strings.TrimSuffix(s, suffix)
		}
	}
	return s
}

func frameworkName(installName string) (string, bool) {
	base := path.Base(installName)
	dir := path.Dir(installName)
	// Foo.framework/Versions/A/Foo
	if vdir := path.Dir(dir); path.Base(vdir) == "Versions" {
		if fw := path.Base(path.Dir(vdir)); strings.HasSuffix(fw, ".framework") {
			name := strings.TrimSuffix(fw, ".framework")
			if stripSuffix(base) == name {
				return name, true
			}
		}
	}
	// Foo.framework/Foo
	if fw := path.Base(dir); strings.HasSuffix(fw, ".framework") {
		name := strings.TrimSuffix(fw, ".framework")
		if stripSuffix(base) == name {
			return name, true
		}
	}
	return "", false
}

func libraryName(installName string) string {
	base := path.Base(installName)
	base = strings.TrimSuffix(base, ".dylib")
	base = stripSuffix(base)
	// libfoo.A -> libfoo
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return stripSuffix(base)
}
