package domain

import (
	"errors"
	"time"
)

type SessionState string

const (
	StateInitializing    SessionState = "initializing"
	StateAwaitingPairing SessionState = "awaiting_pairing"
	StateReady           SessionState = "ready"
	StateDisconnected    SessionState = "disconnected"
)

var (
	ErrSessionNotReady    = errors.New("session not ready")
	ErrSessionNotFound    = errors.New("session not found")
	ErrDispatchInProgress = errors.New("dispatch already in progress")
	ErrParse              = errors.New("unreadable or empty recipient file")
)

// Failure reasons the engine assigns itself. Adapter-level failures keep the
// adapter's own error text.
const (
	ReasonSessionLost = "session_lost"
	ReasonTimeout     = "timeout"
	ReasonCanceled    = "canceled"
)

type SendOutcome string

const (
	OutcomeSent   SendOutcome = "sent"
	OutcomeFailed SendOutcome = "failed"
)

type SendRecord struct {
	Recipient string      `json:"recipient"`
	Outcome   SendOutcome `json:"outcome"`
	Reason    string      `json:"reason,omitempty"`
}

type DispatchResult struct {
	CampaignID string        `json:"campaignId"`
	Results    []SendRecord  `json:"results"`
	Sent       int           `json:"sent"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"-"`
}
