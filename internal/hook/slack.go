package hook

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"

	"github.com/Simonization/webservTester/internal/model"
)

// SlackHook sends messages to a slack channel that inform on finished
// conformance runs.
type SlackHook struct {
	api             *slack.Client
	notifyChannelID string

	log *slog.Logger
}

func NewSlackHook(channelID, token string, log *slog.Logger) *SlackHook {
	return &SlackHook{
		api:             slack.New(token),
		notifyChannelID: channelID,
		log:             log,
	}
}

func (h *SlackHook) Name() string {
	return "Slack"
}

func (h *SlackHook) Init() error {
	_, err := h.api.AuthTest()
	if err != nil {
		return fmt.Errorf("invalid auth token: %w", err)
	}

	return nil
}

func (h *SlackHook) RunFinishedAsync(r model.Report, callback func(context map[string]any)) {
	if r.Failed == 0 {
		return
	}

	summary := strings.Builder{}

	summary.WriteString(fmt.Sprintf("Conformance run <http://localhost:1337/runs/%[1]d|%[1]d> of %s finished with verdict %q (score %.1f%%).",
		r.ID, r.SUTBinary, r.Verdict, r.Score))
	summary.WriteString("\n\n")
	summary.WriteString("Failed sections:\n")

	for _, s := range r.Sections {
		if s.Outcome != model.OutcomeFailed {
			continue
		}
		summary.WriteString(fmt.Sprintf("- %s (%s)\n", s.Name, s.GradeImpact))
	}

	newMarkdownSection := slack.NewSectionBlock(
		slack.NewTextBlockObject(
			"mrkdwn",
			summary.String(),
			false, false,
		),

		nil, nil)

	msg := []slack.MsgOption{
		slack.MsgOptionBlocks(newMarkdownSection),
	}

	_, _, err := h.api.PostMessage(h.notifyChannelID, msg...)
	if err != nil {
		h.log.Error("unable to send slack message", "error", err)
	}
}
