package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "chinese with punctuation", input: "我的图!", want: "我的图"},
		{name: "ascii words", input: "Hello World", want: "HelloWorld"},
		{name: "underscore kept", input: "a_b-c", want: "a_bc"},
		{name: "emoji and symbols", input: "旅行✈️ vlog #1", want: "旅行vlog1"},
		{name: "full-width ascii folded", input: "ＡＢＣ１２３", want: "ABC123"},
		{name: "compatibility ideograph composed", input: "\uF900", want: "\u8C48"},
		{name: "path separators", input: "../../etc/passwd", want: "etcpasswd"},
		{name: "japanese kana dropped", input: "こんにちは世界", want: "世界"},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeTitle(tt.input))
		})
	}
}

func TestFileStem(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "hex id", input: "64781bdd000000001300a8b5", want: "64781bdd000000001300a8b5"},
		{name: "dash and underscore", input: "1040g0k0-abc_1", want: "1040g0k0-abc_1"},
		{name: "traversal", input: "../../../../tmp/pwn", want: "tmppwn"},
		{name: "windows separators", input: `..\..\x`, want: "x"},
		{name: "only dots", input: "..", want: ""},
		{name: "cjk dropped", input: "图1", want: "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FileStem(tt.input))
		})
	}
}

func TestSanitizeTitleIsIdempotent(t *testing.T) {
	inputs := []string{
		"我的图!",
		"Hello #{tagName=World}",
		"ＡＢＣ　全角",
		"\u0000​混合 mixed_123 ～～",
		"",
		"🙂🙂🙂",
	}
	for _, in := range inputs {
		once := SanitizeTitle(in)
		assert.Equal(t, once, SanitizeTitle(once), "input %q", in)
	}
}

func TestMediaItemDirFallsBackToID(t *testing.T) {
	item := MediaItem{ID: "64781bdd0000000013004fdf", Title: "!!!"}
	assert.Equal(t, "64781bdd0000000013004fdf", item.Dir())

	item.Title = "春天 spring"
	assert.Equal(t, "春天spring", item.Dir())
}

func TestKindDir(t *testing.T) {
	assert.Equal(t, "video", KindVideo.Dir())
	assert.Equal(t, "images", KindImage.Dir())
}

func TestDownloadTaskPercent(t *testing.T) {
	task := NewDownloadTask(AssetRef{URL: "http://x/a.jpg"}, "/tmp/a.jpg", KindImage)
	require.Equal(t, TaskPending, task.Status)
	assert.Equal(t, -1, task.Percent(), "unknown total is indeterminate")

	task.BytesTotal = 200
	task.BytesReceived = 50
	assert.Equal(t, 25, task.Percent())

	task.BytesReceived = 400
	assert.Equal(t, 100, task.Percent())
}

func TestOutcomeAdvanceIsForwardOnly(t *testing.T) {
	o := &Outcome{State: ItemQueued}

	require.True(t, o.Advance(ItemFetching))
	require.True(t, o.Advance(ItemExtracting))
	assert.False(t, o.Advance(ItemFetching), "no backward transitions")
	require.True(t, o.Advance(ItemDownloadingAssets))
	require.True(t, o.Advance(ItemCompleted))

	assert.False(t, o.Advance(ItemFailed), "terminal states are final")
	o.Fail(assert.AnError)
	assert.Equal(t, ItemCompleted, o.State)
	assert.Nil(t, o.Err)
}

func TestOutcomeFailRecordsError(t *testing.T) {
	o := &Outcome{State: ItemExtracting}
	o.Fail(assert.AnError)

	assert.Equal(t, ItemFailed, o.State)
	assert.ErrorIs(t, o.Err, assert.AnError)
	assert.Equal(t, assert.AnError.Error(), o.Error)
}
