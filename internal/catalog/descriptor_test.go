package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDescriptor(t *testing.T) {
	tests := []struct {
		raw     string
		want    ClassName
		wantErr bool
	}{
		{raw: "Lcom/example/Foo;", want: "com.example.Foo"},
		{raw: "Ljava/lang/String;", want: "java.lang.String"},
		{raw: "LFoo;", want: "Foo"},
		{raw: "Lcom/a/Outer$1;", want: "com.a.Outer$1"},
		{raw: "[Lcom/a/B;", want: "com.a.B"},
		{raw: "[[Lcom/a/B;", want: "com.a.B"},
		{raw: "[I", wantErr: true},
		{raw: "I", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "L;", wantErr: true},
		{raw: "com.example.Foo", wantErr: true},
		{raw: "Lcom/example/Foo", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseDescriptor(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedDescriptor))
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassName_Parts(t *testing.T) {
	n := ClassName("com.target.app.PasswordManager")

	assert.Equal(t, "com.target.app", n.Package())
	assert.Equal(t, "PasswordManager", n.Simple())
	assert.Equal(t, "Lcom/target/app/PasswordManager;", n.Descriptor())
	assert.Equal(t, "com.target.app.PasswordManager", n.String())

	root := ClassName("Main")
	assert.Equal(t, "", root.Package())
	assert.Equal(t, "Main", root.Simple())
}

func TestClassName_DescriptorRoundTrip(t *testing.T) {
	for _, n := range []ClassName{"a.B", "com.example.Foo$Bar"} {
		got, err := ParseDescriptor(n.Descriptor())
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
}

func TestPatterns(t *testing.T) {
	name := ClassName("com.example.PasswordManager")

	tests := []struct {
		name    string
		pattern Pattern
		want    bool
		wantErr bool
	}{
		{"regexp", MustCompile(`Password`), true, false},
		{"regexp case sensitive", MustCompile(`password`), false, false},
		{"case insensitive", CaseInsensitive(`password`), true, false},
		{"anchored", MustCompile(`^com\.example\.`), true, false},
		{"glob prefix", Glob("com.example.*"), true, false},
		{"glob infix", Glob("*Password*"), true, false},
		{"glob miss", Glob("org.*"), false, false},
		{"glob malformed", Glob("[com"), false, true},
		{"substring", Substring("MANAGER"), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.pattern.Match(name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompilePattern(t *testing.T) {
	p, err := CompilePattern("session", true)
	require.NoError(t, err)
	ok, err := p.Match("com.a.Session")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = CompilePattern("(", false)
	assert.Error(t, err)
}
