package macho

import "testing"

func TestShortName(t *testing.T) {
	tests := []struct {
		installName   string
		wantName      string
		wantFramework bool
	}{
		{"/System/Library/Frameworks/Foundation.framework/Versions/C/Foundation", "Foundation", true},
		{"/System/Library/Frameworks/Carbon.framework/Carbon", "Carbon", true},
		{"/System/Library/Frameworks/AppKit.framework/Versions/C/AppKit_debug", "AppKit", true},
		{"/System/Library/Frameworks/AppKit.framework/Versions/C/AppKit_profile", "AppKit", true},
		{"/usr/lib/libSystem.B.dylib", "libSystem", false},
		{"/usr/lib/libobjc.A_debug.dylib", "libobjc", false},
		{"/usr/lib/libz.dylib", "libz", false},
		{"/usr/lib/libcrypto_profile.dylib", "libcrypto", false},
		{"@executable_path/../Frameworks/Helper.framework/Versions/A/Helper", "Helper", true},
		{"/opt/Foo.framework/Versions/A/Bar", "Bar", false},
	}
	for _, tt := range tests {
		t.Run(tt.installName, func(t *testing.T) {
			name, fw := ShortName(tt.installName)
			if name != tt.wantName || fw != tt.wantFramework {
				t.Errorf("ShortName() = %q, %v, want %q, %v", name, fw, tt.wantName, tt.wantFramework)
			}
		})
	}
}
