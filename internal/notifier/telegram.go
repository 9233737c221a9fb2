package notifier

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/amirphl/ml-trader/internal/utils"
)

const defaultAPIBase = "https://api.telegram.org"

type TelegramNotifier struct {
	Token  string
	ChatID string

	apiBase     string
	maxAttempts int
	retryDelay  time.Duration
}

func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		Token:       token,
		ChatID:      chatID,
		apiBase:     defaultAPIBase,
		maxAttempts: 3,
		retryDelay:  2 * time.Second,
	}
}

func (t *TelegramNotifier) Send(message string) error {
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.Token)
	resp, err := http.PostForm(apiURL, url.Values{
		"chat_id": {t.ChatID},
		"text":    {message},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("telegram send failed: %s", resp.Status)
	}
	return nil
}

// SendWithRetry retries Send a few times before giving up. Notification
// failures must never take the trading loop down, so callers usually only
// log the returned error.
func (t *TelegramNotifier) SendWithRetry(message string) error {
	var lastErr error
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		lastErr = t.Send(message)
		if lastErr == nil {
			return nil
		}
		utils.GetLogger().Warnf("Notifier | Send attempt %d/%d failed: %v", attempt, t.maxAttempts, lastErr)
		if attempt < t.maxAttempts {
			time.Sleep(t.retryDelay)
		}
	}
	return fmt.Errorf("telegram send failed after %d attempts: %w", t.maxAttempts, lastErr)
}

// RetryWithNotification runs action with the same retry budget and sends an
// alert when every attempt failed.
func (t *TelegramNotifier) RetryWithNotification(action func() error, description string) error {
	var lastErr error
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		lastErr = action()
		if lastErr == nil {
			return nil
		}
		utils.GetLogger().Warnf("Notifier | %s attempt %d/%d failed: %v", description, attempt, t.maxAttempts, lastErr)
		if attempt < t.maxAttempts {
			time.Sleep(t.retryDelay)
		}
	}
	if err := t.SendWithRetry(fmt.Sprintf("ALERT: %s failed after %d attempts: %v", description, t.maxAttempts, lastErr)); err != nil {
		utils.GetLogger().Errorf("Notifier | Failed to deliver alert: %v", err)
	}
	return lastErr
}
