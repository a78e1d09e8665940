package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HyIsNoob/khytool/internal/domain"
)

func testRef() domain.ContentRef {
	return domain.ContentRef{
		Platform:     domain.PlatformTikTok,
		CanonicalURL: "https://www.tiktok.com/video/7123456789012345678",
		ContentID:    "7123456789012345678",
	}
}

func TestRunStrategies_FirstSuccessWins(t *testing.T) {
	var messages []string
	secondCalled := false

	meta, err := runStrategies(context.Background(), testRef(), func(m string) {
		messages = append(messages, m)
	}, []strategy{
		{name: "first", run: func(context.Context) (*domain.VideoMetadata, error) {
			return &domain.VideoMetadata{Title: "hit"}, nil
		}},
		{name: "second", run: func(context.Context) (*domain.VideoMetadata, error) {
			secondCalled = true
			return nil, errors.New("should not run")
		}},
	})

	require.NoError(t, err)
	assert.Equal(t, "hit", meta.Title)
	assert.False(t, secondCalled)
	assert.Contains(t, messages, "Trying first...")
	assert.Contains(t, messages, "first succeeded")
}

func TestRunStrategies_FailureIsolation(t *testing.T) {
	var messages []string

	meta, err := runStrategies(context.Background(), testRef(), func(m string) {
		messages = append(messages, m)
	}, []strategy{
		{name: "broken", run: func(context.Context) (*domain.VideoMetadata, error) {
			return nil, errors.New("network down")
		}},
		{name: "working", run: func(context.Context) (*domain.VideoMetadata, error) {
			return &domain.VideoMetadata{Title: "recovered"}, nil
		}},
	})

	require.NoError(t, err)
	assert.Equal(t, "recovered", meta.Title)
	assert.Contains(t, messages, "broken failed: network down")
}

func TestRunStrategies_ProgressOrderFollowsChain(t *testing.T) {
	var messages []string

	_, err := runStrategies(context.Background(), testRef(), func(m string) {
		messages = append(messages, m)
	}, []strategy{
		{name: "one", run: func(context.Context) (*domain.VideoMetadata, error) {
			return nil, errors.New("no")
		}},
		{name: "two", run: func(context.Context) (*domain.VideoMetadata, error) {
			return nil, errors.New("no")
		}},
	})

	require.NoError(t, err)
	require.GreaterOrEqual(t, len(messages), 4)
	assert.Equal(t, "Trying one...", messages[0])
	assert.Equal(t, "one failed: no", messages[1])
	assert.Equal(t, "Trying two...", messages[2])
	assert.Equal(t, "two failed: no", messages[3])
}

func TestRunStrategies_StubWhenAllFail(t *testing.T) {
	meta, err := runStrategies(context.Background(), testRef(), nil, []strategy{
		{name: "a", run: func(context.Context) (*domain.VideoMetadata, error) {
			return nil, errors.New("no")
		}},
		{name: "b", run: func(context.Context) (*domain.VideoMetadata, error) {
			return nil, errors.New("no")
		}},
	})

	require.NoError(t, err, "stub result, never an error, when strategies fail")
	assert.Equal(t, "TikTok Video 7123456789012345678", meta.Title)
	assert.Equal(t, "Unknown", meta.Author)
	assert.Equal(t, 0, meta.DurationSeconds)
	require.Len(t, meta.Formats, 2)
	assert.Equal(t, "best", meta.Formats[0].FormatID)
	assert.Equal(t, "bestaudio", meta.Formats[1].FormatID)
}

func TestRunStrategies_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	_, err := runStrategies(ctx, testRef(), nil, []strategy{
		{name: "first", run: func(context.Context) (*domain.VideoMetadata, error) {
			cancel()
			return nil, errors.New("failing after cancel")
		}},
		{name: "never", run: func(context.Context) (*domain.VideoMetadata, error) {
			t.Fatal("ran after cancellation")
			return nil, nil
		}},
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunStrategies_PartialResultFilled(t *testing.T) {
	meta, err := runStrategies(context.Background(), testRef(), nil, []strategy{
		{name: "partial", run: func(context.Context) (*domain.VideoMetadata, error) {
			return &domain.VideoMetadata{Title: "only title"}, nil
		}},
	})

	require.NoError(t, err)
	assert.Equal(t, "Unknown", meta.Author)
	require.Len(t, meta.Formats, 2, "missing formats replaced by the fixed pair")
}

func TestRandomDeviceID(t *testing.T) {
	id := randomDeviceID()
	assert.Len(t, id, 19)
	assert.True(t, isDigits(id))
	assert.NotEqual(t, byte('0'), id[0])
}
