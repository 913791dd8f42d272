package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerFiltersByLevel(t *testing.T) {
	var out bytes.Buffer
	log := NewLogger("test", &out)
	log.Level = Info

	log.Debug("hidden %d", 1)
	assert.Equal(t, 0, out.Len())

	log.Info("shown %d", 2)
	line := out.String()
	assert.True(t, strings.HasSuffix(line, "shown 2\n"), line)
	assert.Contains(t, line, "I/test[logger_test.go:")
	// Not a terminal, so no escape codes.
	assert.NotContains(t, line, "\033[")
}

func TestEnabled(t *testing.T) {
	log := NewLogger("test", &bytes.Buffer{})
	log.Level = Debug
	assert.True(t, log.Enabled(Error))
	assert.True(t, log.Enabled(Debug))
	assert.False(t, log.Enabled(Level(5)))
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"e":     Error,
		"WARN":  Warn,
		"info":  Info,
		"D":     Debug,
		"trace": MaxLevel,
		"4":     Level(4),
		" -1 ":  Warn,
	}
	for s, expected := range cases {
		level, err := ParseLevel(s)
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", s, err)
			continue
		}
		assert.Equal(t, expected, level, s)
	}

	_, err := ParseLevel("12")
	assert.Error(t, err)
	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "WARN", Warn.String())
	assert.Equal(t, "DEBUG", Debug.String())
	assert.Equal(t, "7", Level(7).String())
	assert.EqualValues(t, '7', Level(7).letter())
}

func TestParseDirectives(t *testing.T) {
	d, err := ParseDirectives("warn, codec=debug,capture=3")
	require.NoError(t, err)
	assert.Equal(t, Warn, d.Default)
	assert.Equal(t, Debug, d.levelFor("codec"))
	assert.Equal(t, Level(3), d.levelFor("capture"))
	assert.Equal(t, Warn, d.levelFor("gl"))

	d, err = ParseDirectives("")
	require.NoError(t, err)
	assert.Equal(t, Info, d.Default)

	_, err = ParseDirectives("codec=loud")
	assert.Error(t, err)
	_, err = ParseDirectives("=debug")
	assert.Error(t, err)
}

func TestSetLevelsUpdatesExistingLoggers(t *testing.T) {
	saved := active
	defer func() {
		registryMu.Lock()
		active = saved
		DefaultLogger.Level = saved.Default
		for _, l := range registry {
			l.Level = saved.levelFor(l.Tag)
		}
		registryMu.Unlock()
	}()

	var out bytes.Buffer
	codec := NewLogger("levels-codec", &out)
	other := codec.WithTag("levels-other")

	require.NoError(t, SetLevels("error,levels-codec=debug"))
	assert.Equal(t, Debug, codec.Level)
	assert.Equal(t, Error, other.Level)

	other.Warn("dropped")
	codec.Debug("kept")
	assert.NotContains(t, out.String(), "dropped")
	assert.Contains(t, out.String(), "D/levels-codec")

	assert.Error(t, SetLevels("levels-codec=nope"))
	assert.Equal(t, Debug, codec.Level)
}

func TestWithTagSharesDestination(t *testing.T) {
	var out bytes.Buffer
	parent := NewLogger("", &out)
	child := parent.WithTag("child")
	child.Level = Info

	child.Warn("from child")
	assert.Contains(t, out.String(), "W/child")
}
