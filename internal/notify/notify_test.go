package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/koustreak/bucketvis/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct{ err error }

func (f failingSink) Notify(context.Context, Message) error { return f.err }

func TestMemory_RecentNewestFirstAndCapped(t *testing.T) {
	m := NewMemory(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Notify(context.Background(), Message{Text: fmt.Sprint(i)}))
	}

	got, err := m.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "3", "2"}, texts(got))

	got, err = m.Recent(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "3"}, texts(got))
}

func TestMulti(t *testing.T) {
	mem := NewMemory(10)
	boom := errors.New("journal down")
	multi := Multi{NewLogSink(logger.Nop()), failingSink{boom}, mem}

	err := multi.Notify(context.Background(), Message{Level: LevelSuccess, Text: "ok"})
	assert.ErrorIs(t, err, boom)

	got, err := multi.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, texts(got))
}

func TestMulti_WithoutReader(t *testing.T) {
	got, err := Multi{Discard{}}.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func texts(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}
