package main

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makerspace/doorctl/pkg/events"
)

func TestCommandTree(t *testing.T) {
	cmd := NewCommand()
	for _, name := range []string{"daemon", "status", "watch", "lock", "unlock", "calibrate", "version", "install", "uninstall"} {
		c, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}
}

func TestVersionCommand(t *testing.T) {
	cmd := NewCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--daemon-socket", "/nonexistent.sock"})
	require.NoError(t, cmd.Execute())
	assert.NotEmpty(t, out.String())
}

func TestEventText(t *testing.T) {
	color.NoColor = true

	ev := events.Event{Name: events.CardSwiped, Data: []byte(`{"cardId":"0000000042","outcome":"granted","name":"Ada","ts":0}`)}
	assert.Contains(t, eventText(ev), "card Ada (0000000042): granted")

	ev = events.Event{Name: "something.else", Data: []byte(`{}`)}
	assert.Equal(t, "something.else {}", eventText(ev))
}
