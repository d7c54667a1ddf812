package retailer

import (
	"context"
	"fmt"
)

// ChallengeKind is the type of out-of-band verification the retailer asked for.
type ChallengeKind string

const (
	ChallengeCaptcha  ChallengeKind = "captcha"
	ChallengeOTP      ChallengeKind = "otp"
	ChallengeCVF      ChallengeKind = "cvf"
	ChallengeApproval ChallengeKind = "approval"
)

// ApprovalPrompt is shown to the user when the retailer waits for an out-of-band approval.
const ApprovalPrompt = "Approval alert detected! Amazon sends you an email. Please press enter after you approve the notification."

// ParseChallengeKind validates a kind received from the wire.
func ParseChallengeKind(s string) (ChallengeKind, error) {
	switch k := ChallengeKind(s); k {
	case ChallengeCaptcha, ChallengeOTP, ChallengeCVF, ChallengeApproval:
		return k, nil
	default:
		return "", fmt.Errorf("unknown challenge type %q", s)
	}
}

// Challenge is a single prompt raised during sign-in.
type Challenge struct {
	ID     string        `json:"id"`
	Kind   ChallengeKind `json:"type"`
	URL    string        `json:"url,omitempty"`
	Prompt string        `json:"prompt,omitempty"`
}

// ChallengeSolver produces the answer to a challenge, blocking until one is available.
type ChallengeSolver interface {
	Solve(ctx context.Context, c Challenge) (string, error)
}

// SolverFunc adapts a function to [ChallengeSolver].
type SolverFunc func(ctx context.Context, c Challenge) (string, error)

// Solve calls f.
func (f SolverFunc) Solve(ctx context.Context, c Challenge) (string, error) {
	return f(ctx, c)
}
