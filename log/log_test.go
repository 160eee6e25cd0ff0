package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeID string

func (id fakeID) ShortString() string { return string(id[:3]) }

func TestNew(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  Config
		err  bool
	}{
		{name: "default", cfg: DefaultConfig()},
		{name: "json", cfg: Config{Level: "debug", Encoder: JSONEncoder}},
		{name: "bad level", cfg: Config{Level: "loud", Encoder: ConsoleEncoder}, err: true},
		{name: "bad encoder", cfg: Config{Level: "info", Encoder: "xml"}, err: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			lg, err := New(tc.cfg)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, lg)
		})
	}
}

func TestZShortStringer(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	lg := zap.New(core)
	lg.Info("msg", ZShortStringer("id", fakeID("abcdef")))
	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "abc", entries[0].ContextMap()["id"])
}

func TestFatalError(t *testing.T) {
	reason := errors.New("boom")
	err := ErrDecodeFailure(reason)
	require.Equal(t, "ERR_DECODE_FAILURE", err.Code)
	require.Equal(t, "sketch decode failed: boom", err.Error())
	require.ErrorIs(t, err, reason)

	err = ErrBlockSource("abc", "gone")
	require.Equal(t, "could not load block abc: gone", err.Error())

	core, logs := observer.New(zapcore.InfoLevel)
	zap.New(core).Error("fatal", zap.Inline(err))
	require.Equal(t, "ERR_BLOCK_SOURCE", logs.All()[0].ContextMap()["code"])
}
