package client

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/chatrelay-go/internal/protocol"
)

func TestParseInputCommands(t *testing.T) {
	cases := []struct {
		line string
		want protocol.Packet
	}{
		{"hello everyone", protocol.SendMessageAll("hello everyone")},
		{"hello\r\n", protocol.SendMessageAll("hello")},
		{"@user 2 psst over here", protocol.SendMessageUser(2, "psst over here")},
		{"@room 7 hi room", protocol.SendMessageRoom(7, "hi room")},
		{"@create gophers den", protocol.CreateRoom("gophers den")},
		{"@join 3", protocol.JoinRoom(3)},
		{"@leave 3", protocol.LeaveRoom(3)},
	}
	for _, tc := range cases {
		got, err := ParseInput(tc.line)
		require.NoError(t, err, tc.line)
		assert.Equal(t, tc.want, got, tc.line)
	}
}

func TestParseInputErrors(t *testing.T) {
	cases := []struct {
		line string
		text string
	}{
		{"@user", "System: Insufficient arguments provided for command '@user'."},
		{"@join ", "System: Insufficient arguments provided for command '@join '."},
		{"@user bob hi", "System: 'bob' in command '@user bob hi' is not a valid number."},
		{"@user 2", "System: Cannot send an empty message to a user."},
		{"@room 2 ", "System: Cannot send an empty message to a room."},
		{"@join 1 2", "System: Too many arguments provided in command '@join 1 2'."},
		{"@leave -1", "System: '-1' in command '@leave -1' is not a valid number."},
	}
	for _, tc := range cases {
		_, err := ParseInput(tc.line)
		var inputErr *InputError
		require.True(t, errors.As(err, &inputErr), tc.line)
		assert.Equal(t, tc.text, inputErr.Text)
	}

	_, err := ParseInput("@shout hi")
	var inputErr *InputError
	require.True(t, errors.As(err, &inputErr))
	assert.Contains(t, inputErr.Text, "Unrecognized request '@shout'")
	assert.Contains(t, inputErr.Text, "@leave <room id #>")

	_, err = ParseInput("   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}
