// ABOUTME: Inbound webhook adapter for Messenger page events
// ABOUTME: Verify handshake, signature check, hand-off linking, relay dispatch

package messenger

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/chatseam/chatseam/internal/dedupe"
	"github.com/chatseam/chatseam/internal/session"
)

// TextSender posts a text message to a platform recipient. Implemented by
// Client; stubbed in tests.
type TextSender interface {
	SendText(ctx context.Context, recipient, text string) (string, error)
}

// Webhook handles Meta's webhook callbacks for a page.
type Webhook struct {
	verifyToken string
	appSecret   string
	echo        bool

	links  *session.Links
	relay  *session.Relay
	seen   *dedupe.Cache
	sender TextSender
	logger *slog.Logger
}

// WebhookConfig wires a Webhook's collaborators.
type WebhookConfig struct {
	VerifyToken string
	AppSecret   string // empty disables signature verification
	Echo        bool   // auto-reply "Received: ..." to every message

	Links  *session.Links
	Relay  *session.Relay
	Seen   *dedupe.Cache
	Sender TextSender
	Logger *slog.Logger
}

// NewWebhook creates the inbound adapter. Pass nil logger for default.
func NewWebhook(cfg WebhookConfig) *Webhook {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		verifyToken: cfg.VerifyToken,
		appSecret:   cfg.AppSecret,
		echo:        cfg.Echo,
		links:       cfg.Links,
		relay:       cfg.Relay,
		seen:        cfg.Seen,
		sender:      cfg.Sender,
		logger:      logger.With("component", "webhook"),
	}
}

// pagePayload is the body Meta posts for page subscriptions.
type pagePayload struct {
	Object string      `json:"object"`
	Entry  []pageEntry `json:"entry"`
}

type pageEntry struct {
	Messaging []messagingEvent `json:"messaging"`
}

// messagingEvent is one event inside an entry: a message, a referral, or
// a postback carrying a referral.
type messagingEvent struct {
	Sender   *participant  `json:"sender"`
	Referral *referral     `json:"referral"`
	Postback *postback     `json:"postback"`
	Message  *eventMessage `json:"message"`
}

type participant struct {
	ID string `json:"id"`
}

type referral struct {
	Ref string `json:"ref"`
}

type postback struct {
	Referral *referral `json:"referral"`
}

type eventMessage struct {
	MID  string `json:"mid"`
	Text string `json:"text"`
}

// ref returns the hand-off session ID carried by the event, if any.
// Referrals arrive directly on first contact with an m.me link, or nested
// in a postback when the visitor taps Get Started.
func (e *messagingEvent) ref() string {
	if e.Referral != nil {
		return e.Referral.Ref
	}
	if e.Postback != nil && e.Postback.Referral != nil {
		return e.Postback.Referral.Ref
	}
	return ""
}

// ServeHTTP routes the verify handshake and event deliveries.
func (wh *Webhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		wh.handleVerify(w, r)
	case http.MethodPost:
		wh.handleEvents(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleVerify answers the subscription handshake: echo hub.challenge
// when the verify token matches, 403 otherwise.
func (wh *Webhook) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && token == wh.verifyToken {
		wh.logger.Info("webhook verified")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
		return
	}

	wh.logger.Warn("webhook verification failed", "mode", mode)
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte("Forbidden"))
}

// handleEvents processes a POSTed batch of page events. The platform
// keeps redelivering until it sees a 200, so per-event problems are
// logged and ACKed rather than surfaced as failures.
func (wh *Webhook) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if wh.appSecret != "" && !wh.verifySignature(r.Header.Get("X-Hub-Signature-256"), body) {
		wh.logger.Warn("webhook signature mismatch")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var payload pagePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		wh.logger.Warn("malformed webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if payload.Object != "page" {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("Not Found"))
		return
	}

	for _, entry := range payload.Entry {
		for _, event := range entry.Messaging {
			wh.handleEvent(r.Context(), &event)
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("EVENT_RECEIVED"))
}

// verifySignature checks the sha256= HMAC Meta computes over the raw body
// with the app secret.
func (wh *Webhook) verifySignature(header string, body []byte) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	mac := hmac.New(sha256.New, []byte(wh.appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(sig))
}

// handleEvent applies one messaging event: link the hand-off referral if
// present, relay the message text if present, echo if configured.
func (wh *Webhook) handleEvent(ctx context.Context, event *messagingEvent) {
	var senderID string
	if event.Sender != nil {
		senderID = event.Sender.ID
	}

	if ref := event.ref(); ref != "" && senderID != "" {
		switch err := wh.links.Link(ref, senderID); {
		case errors.Is(err, session.ErrAlreadyLinked):
			wh.logger.Warn("duplicate hand-off ignored", "session", ref, "recipient", senderID)
		case err == nil:
			wh.logger.Info("session linked", "session", ref, "recipient", senderID)
		}
	}

	if event.Message == nil || event.Message.Text == "" {
		return
	}

	if mid := event.Message.MID; mid != "" && wh.seen != nil && wh.seen.Seen(mid) {
		wh.logger.Debug("duplicate message ignored", "mid", mid)
		return
	}

	if err := wh.relay.DeliverInbound(senderID, event.Message.Text); err != nil {
		// The visitor has not linked yet, or linked under a session this
		// process never saw. Dropped, still ACKed.
		wh.logger.Info("message for unlinked recipient dropped", "recipient", senderID)
	}

	if wh.echo && wh.sender != nil && senderID != "" {
		reply := fmt.Sprintf("Received: %q", event.Message.Text)
		if _, err := wh.sender.SendText(ctx, senderID, reply); err != nil {
			wh.logger.Error("echo reply failed", "recipient", senderID, "error", err)
		}
	}
}
