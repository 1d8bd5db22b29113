package infrastructure

import (
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/yourusername/vgrab-go/internal/domain"
	"go.uber.org/zap"
)

type recordedCommand struct {
	name string
	args []string
}

func newTestNotifier(config *domain.NotificationConfig) (*NotificationService, *[]recordedCommand) {
	var cmds []recordedCommand
	n := NewNotificationService(config, zap.NewNop())
	n.run = func(name string, args ...string) error {
		cmds = append(cmds, recordedCommand{name: name, args: args})
		return nil
	}
	return n, &cmds
}

func TestNotificationService_Disabled(t *testing.T) {
	n, cmds := newTestNotifier(&domain.NotificationConfig{Enabled: false, Method: "notify-send"})

	assert.NoError(t, n.Send("title", "message"))
	assert.Empty(t, *cmds)
}

func TestNotificationService_NotifySend(t *testing.T) {
	n, cmds := newTestNotifier(&domain.NotificationConfig{Enabled: true, Method: "notify-send"})

	n.OnCompletion(domain.JobRecord{Source: "https://www.youtube.com/watch?v=abcdefghijk", Quality: domain.Quality720p})

	assert.Equal(t, []recordedCommand{{
		name: "notify-send",
		args: []string{"Download Completed", "Success: https://www.youtube.com/watch?... (720p)"},
	}}, *cmds)
}

func TestNotificationService_OSAScriptQuotesMessage(t *testing.T) {
	n, cmds := newTestNotifier(&domain.NotificationConfig{Enabled: true, Method: "osascript", Sound: true})

	assert.NoError(t, n.Send(`Say "hi"`, "done"))

	if assert.Len(t, *cmds, 1) {
		assert.Equal(t, "osascript", (*cmds)[0].name)
		assert.Equal(t, []string{"-e", `display notification "done" with title "Say \"hi\"" sound name "Glass"`}, (*cmds)[0].args)
	}
}

func TestNotificationService_FailureTitles(t *testing.T) {
	n, cmds := newTestNotifier(&domain.NotificationConfig{Enabled: true, Method: "notify-send"})

	n.OnFailure(domain.JobRecord{Source: "https://example/v", ErrorMessage: domain.ErrCancelled.Error()})
	n.OnFailure(domain.JobRecord{Source: "https://example/v", ErrorMessage: "HTTP Error 404"})
	n.OnProgress(domain.Progress{})

	if assert.Len(t, *cmds, 2) {
		assert.Equal(t, "Download Cancelled", (*cmds)[0].args[0])
		assert.Equal(t, "Download Failed", (*cmds)[1].args[0])
		assert.Equal(t, "https://example/v: HTTP Error 404", (*cmds)[1].args[1])
	}
}

func TestNotificationService_CommandError(t *testing.T) {
	n := NewNotificationService(&domain.NotificationConfig{Enabled: true, Method: "notify-send"}, zap.NewNop())
	n.run = func(string, ...string) error { return errors.New("not found") }

	assert.Error(t, n.Send("t", "m"))
}

func TestNotificationService_UnknownMethod(t *testing.T) {
	n, cmds := newTestNotifier(&domain.NotificationConfig{Enabled: true, Method: "pigeon"})

	assert.NoError(t, n.Send("t", "m"))
	assert.Empty(t, *cmds)
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", truncateString("short", 30))
	assert.Equal(t, "abc...", truncateString("abcdef", 3))
	assert.Equal(t, "오디오...", truncateString("오디오만 다운로드", 3))
	assert.Equal(t, "오디오만", truncateString("오디오만", 4))
	assert.True(t, utf8.ValidString(truncateString("ERROR: 동영상을 찾을 수 없습니다", 10)))
}
