package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const sendTimeout = 15 * time.Second

// Notifier sends onboarding mail in the background. Failures are logged and
// never reach the caller.
type Notifier struct {
	sender Sender
	logger *zap.Logger
	wg     sync.WaitGroup
}

func NewNotifier(sender Sender, logger *zap.Logger) *Notifier {
	return &Notifier{sender: sender, logger: logger}
}

func (n *Notifier) RegistrationStarted(email string) {
	n.sendAsync(email, "Complete your account registration",
		"Thanks for signing up.\n\nFinish the remaining registration steps to open your trading account.\n")
}

// AccountOpened announces the new account. The secret is never part of the
// message.
func (n *Notifier) AccountOpened(email, name, accountNumber string) {
	greeting := "Hello"
	if name = strings.TrimSpace(name); name != "" {
		greeting += " " + name
	}
	body := fmt.Sprintf("%s,\n\nYour trading account %s has been opened and is pending activation.\n", greeting, accountNumber)
	n.sendAsync(email, "Your trading account is open", body)
}

func (n *Notifier) sendAsync(to, subject, body string) {
	if n == nil || n.sender == nil || strings.TrimSpace(to) == "" {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := n.sender.Send(ctx, to, subject, body); err != nil {
			n.logger.Warn("notification failed", zap.String("to", to), zap.String("subject", subject), zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}
