package notify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"wordmoment/internal/session"
)

const sendTimeout = 10 * time.Second

// sender is the part of the SES client used here
type sender interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailNotifier mails a short note through Amazon SES when a unit is completed.
// Mails are sent in the background; Close waits for them.
type EmailNotifier struct {
	client    sender
	fromEmail string
	fromName  string
	toEmail   string
	enabled   bool
	debug     bool

	mu       sync.Mutex
	closed   bool
	inFlight sync.WaitGroup
}

// NewEmailNotifier creates a notifier. It is disabled, and only logs, when
// fromEmail or toEmail is empty.
func NewEmailNotifier(ctx context.Context, awsRegion, fromEmail, fromName, toEmail string, debug bool) (*EmailNotifier, error) {
	if fromEmail == "" || toEmail == "" {
		log.Println("Completion e-mail disabled: SES_FROM_EMAIL or NOTIFY_EMAIL not configured")
		return &EmailNotifier{debug: debug}, nil
	}

	if debug {
		log.Printf("[DEBUG] Initializing completion e-mail with AWS SES")
		log.Printf("[DEBUG] AWS Region: %s", awsRegion)
		log.Printf("[DEBUG] From: %s <%s>, To: %s", fromName, fromEmail, toEmail)
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Printf("Completion e-mail enabled: from=%s, to=%s, region=%s", fromEmail, toEmail, awsRegion)
	return newEmailNotifier(sesv2.NewFromConfig(cfg), fromEmail, fromName, toEmail, debug), nil
}

func newEmailNotifier(client sender, fromEmail, fromName, toEmail string, debug bool) *EmailNotifier {
	return &EmailNotifier{
		client:    client,
		fromEmail: fromEmail,
		fromName:  fromName,
		toEmail:   toEmail,
		enabled:   true,
		debug:     debug,
	}
}

// IsEnabled returns whether e-mails are actually sent
func (n *EmailNotifier) IsEnabled() bool {
	return n.enabled
}

// OnEvent queues the completion e-mail and returns without waiting for SES.
// Other events are ignored and send failures are only logged.
func (n *EmailNotifier) OnEvent(e session.Event) {
	if e.Kind != session.EventCompleted {
		return
	}

	if !n.enabled {
		if n.debug {
			log.Printf("[DEBUG] Skipping completion e-mail (disabled): %s/%s", e.LevelID, e.UnitID)
		}
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		log.Printf("Dropping completion e-mail for %s/%s: notifier closed", e.LevelID, e.UnitID)
		return
	}

	n.inFlight.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		if err := n.SendCompletion(ctx, e.LevelID, e.UnitID, e.Cursor+1); err != nil {
			log.Printf("Failed to send completion e-mail: %v", err)
		}
	})
}

// Close stops accepting events and waits for queued e-mails until ctx is done
func (n *EmailNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("completion e-mails still pending: %w", ctx.Err())
	}
}

// SendCompletion mails the completion note for one unit
func (n *EmailNotifier) SendCompletion(ctx context.Context, levelID, unitID string, words int) error {
	if !n.enabled {
		return nil
	}

	subject := fmt.Sprintf("WordMoment: %s %s complete", levelID, unitID)
	body := fmt.Sprintf(`Well done!

You finished %s / %s and practised all %d words.

Open the unit again to keep reviewing, or move on to the next one.

---
This is an automated message from WordMoment. Please do not reply.
`, levelID, unitID, words)

	fromAddress := n.fromEmail
	if n.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", n.fromName, n.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{n.toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Text: &types.Content{
						Data:    aws.String(body),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	result, err := n.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", n.toEmail, err)
	}

	if n.debug && result.MessageId != nil {
		log.Printf("[DEBUG] Message ID: %s", *result.MessageId)
	}
	log.Printf("Email sent successfully: to=%s, subject=%s", n.toEmail, subject)
	return nil
}
