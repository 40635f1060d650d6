package notification

import (
	"errors"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/caravel-rentals/caravel/config"
)

func TestSlackNotification(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", "https://hooks.slack.test/services/T000",
		httpmock.NewStringResponder(200, `{"ok":true}`))

	config.MockConfig(&config.Configuration{
		Notification: config.Notification{
			Slack: config.SlackWebhook{WebhookUrl: "https://hooks.slack.test/services/T000"},
		},
	})

	SlackNotification(errors.New("payment adapter timeout"))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestNotifyErrorWithoutSlackConfigured(t *testing.T) {
	config.MockConfig(&config.Configuration{})
	// Should not panic or attempt delivery when no webhook is configured.
	NotifyError(errors.New("boom"))
}
