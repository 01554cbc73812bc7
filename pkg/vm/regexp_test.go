package vm

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nooga/esvm/pkg/errors"
)

func execRegExp(t *testing.T, c *ExecContext, re *Object, input string) Value {
	t.Helper()
	v, err := c.Call(getProp(t, c, re, "exec"), ObjectValue(re), NewString(input))
	require.NoError(t, err)
	return v
}

func TestCompileRegExpFlags(t *testing.T) {
	tests := []struct {
		flags   string
		wantErr bool
	}{
		{"", false},
		{"gimsuy", false},
		{"gg", true},
		{"x", true},
	}
	for _, tt := range tests {
		t.Run(tt.flags, func(t *testing.T) {
			d, err := compileRegExp("a", tt.flags)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.flags, d.flags)
		})
	}

	_, err := compileRegExp("(", "")
	assert.ErrorContains(t, err, "Invalid regular expression: /(/")
}

func TestRegExpDotAll(t *testing.T) {
	plain, err := compileRegExp("a.b", "")
	require.NoError(t, err)
	dotAll, err := compileRegExp("a.b", "s")
	require.NoError(t, err)

	ok, err := plain.re.MatchString("a\nb")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = dotAll.re.MatchString("a\nb")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegExpGlobalAdvancesLastIndex(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	re, err := rt.Realm().NewRegExp("o", "g")
	require.NoError(t, err)

	for _, want := range []int{1, 2} {
		m := execRegExp(t, c, re, "foo")
		require.True(t, m.IsObject())
		assert.Equal(t, IntegerValue(want), getProp(t, c, m.AsObject(), "index"))
		assert.Equal(t, IntegerValue(want+1), getProp(t, c, re, "lastIndex"))
	}
	assert.True(t, execRegExp(t, c, re, "foo").IsNull())
	assert.Equal(t, IntegerValue(0), getProp(t, c, re, "lastIndex"))
}

func TestRegExpSticky(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	re, err := rt.Realm().NewRegExp("o", "y")
	require.NoError(t, err)

	assert.True(t, execRegExp(t, c, re, "foo").IsNull())
	putProp(t, c, re, "lastIndex", IntegerValue(1))
	m := execRegExp(t, c, re, "foo")
	require.True(t, m.IsObject())
	assert.Equal(t, IntegerValue(2), getProp(t, c, re, "lastIndex"))
}

func TestRegExpCapturesAndLegacyStatics(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	realm := rt.Realm()
	re, err := realm.NewRegExp(`(\w+)@(\w+)(x)?`, "")
	require.NoError(t, err)

	m := execRegExp(t, c, re, "mail me@host now").AsObject()
	assert.Equal(t, NewString("me@host"), getProp(t, c, m, "0"))
	assert.Equal(t, NewString("me"), getProp(t, c, m, "1"))
	assert.True(t, getProp(t, c, m, "3").IsUndefined())
	assert.Equal(t, IntegerValue(5), getProp(t, c, m, "index"))
	assert.Equal(t, NewString("mail me@host now"), getProp(t, c, m, "input"))

	ctor := realm.RegExpConstructor
	assert.Equal(t, NewString("me"), getProp(t, c, ctor, "$1"))
	assert.Equal(t, NewString("host"), getProp(t, c, ctor, "$2"))
	assert.Equal(t, NewString(""), getProp(t, c, ctor, "$9"))
	assert.Equal(t, NewString("me@host"), getProp(t, c, ctor, "lastMatch"))
}

func TestRegExpIndexCountsCodeUnits(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	re, err := rt.Realm().NewRegExp("b", "g")
	require.NoError(t, err)

	m := execRegExp(t, c, re, "\U0001F600b")
	assert.Equal(t, IntegerValue(2), getProp(t, c, m.AsObject(), "index"))
	assert.Equal(t, IntegerValue(3), getProp(t, c, re, "lastIndex"))
}

func TestRegExpConstructor(t *testing.T) {
	rt := newTestRuntime(t)
	c := newTestContext(t, rt)
	ctor := ObjectValue(rt.Realm().RegExpConstructor)

	v, err := c.Construct(ctor, NewString("a+"), NewString("gi"))
	require.NoError(t, err)
	re := v.AsObject()
	assert.Equal(t, ClassRegExp, re.Class())
	s, err := c.Call(getProp(t, c, re, "toString"), v)
	require.NoError(t, err)
	assert.Equal(t, NewString("/a+/gi"), s)

	ok, err := c.Call(getProp(t, c, re, "test"), v, NewString("xAAy"))
	require.NoError(t, err)
	assert.Equal(t, True, ok)

	_, err = c.Construct(ctor, NewString("("))
	var serr *errors.ScriptError
	require.True(t, stderrors.As(err, &serr))
	assert.Equal(t, "SyntaxError", serr.Name)

	_, err = c.Call(getProp(t, c, re, "exec"), NewString("not a regexp"), NewString("x"))
	require.True(t, stderrors.As(err, &serr))
	assert.Equal(t, "TypeError", serr.Name)
}
