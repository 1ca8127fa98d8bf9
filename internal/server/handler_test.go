package server

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lk2023060901/chatrelay-go/internal/network"
	"github.com/lk2023060901/chatrelay-go/pkg/log"
	"github.com/lk2023060901/chatrelay-go/pkg/util/merr"
)

func TestRelayHandlerOnErrorLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := log.L()
	level := log.Level()
	log.ReplaceGlobals(zap.New(core), &log.ZapProperties{Core: core, Level: zap.NewAtomicLevelAt(zapcore.DebugLevel)})
	defer log.ReplaceGlobals(prev, &log.ZapProperties{Core: prev.Core(), Level: level})

	h := &relayHandler{}
	cases := []struct {
		err   error
		level zapcore.Level
		msg   string
	}{
		{merr.WrapErrRoomNotFound(3), zapcore.DebugLevel, "command rejected"},
		{merr.WrapErrMalformedCommand("bad tag"), zapcore.WarnLevel, "packet dropped"},
		{merr.WrapErrCommandNotAllowed("joinServer", "active"), zapcore.WarnLevel, "packet dropped"},
		{merr.WrapErrConnectionFault(errors.New("reset")), zapcore.InfoLevel, "connection fault"},
		{merr.WrapErrIoFailed("write displayToUser", errors.New("broken pipe")), zapcore.WarnLevel, "connection error"},
	}
	for _, c := range cases {
		h.OnError(nil, network.StageDispatch, c.err)
		entries := logs.TakeAll()
		require.Len(t, entries, 1, c.err.Error())
		assert.Equal(t, c.level, entries[0].Level, c.err.Error())
		assert.Equal(t, c.msg, entries[0].Message)
		assert.EqualValues(t, merr.Code(c.err), entries[0].ContextMap()["code"])
	}
}
