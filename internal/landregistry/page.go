// Package landregistry holds the display state of the land registry page and
// the transitions that move it between states. Rendering is left to callers.
package landregistry

import (
	"bytes"
	"encoding/json"
	"fmt"

	client "github.com/pendergraft/dappkit/pkg/landregistry"
)

// BannerKind selects how a banner is styled
type BannerKind string

const (
	BannerWarning BannerKind = "warning"
	BannerSuccess BannerKind = "success"
	BannerError   BannerKind = "error"
)

// Banner is a single styled notice
type Banner struct {
	Kind BannerKind
	Text string
}

// Page is everything the land registry page shows. The zero value is the initial page.
type Page struct {
	TxResult string
	// Alert holds the one banner shown after a submission
	Alert *Banner

	MineResult string
	MineError  *Banner

	ChainResult string
	ChainError  *Banner
}

// Result carries either a value or the error that prevented it
type Result[T any] struct {
	Value T
	Err   error
}

// Ok wraps a successful value
func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

// Fail wraps an error
func Fail[T any](err error) Result[T] { return Result[T]{Err: err} }

// Status texts shown while a request is in flight or after it fails
const (
	Submitting       = "Submitting..."
	SubmissionFailed = "Submission failed"
	Mining           = "Mining..."
	MiningFailed     = "Mining failed"
)

// BeginSubmit clears the previous banner and marks the submission as in flight
func BeginSubmit(p Page) Page {
	p.TxResult = Submitting
	p.Alert = nil
	return p
}

// FinishSubmit shows the backend message and exactly one banner
func FinishSubmit(p Page, r Result[*client.SubmitResult]) Page {
	if r.Err != nil || r.Value == nil {
		err := r.Err
		if err == nil {
			err = fmt.Errorf("empty response")
		}
		p.TxResult = SubmissionFailed
		p.Alert = &Banner{Kind: BannerError, Text: err.Error()}
		return p
	}

	p.TxResult = r.Value.Message
	if r.Value.Flagged {
		p.Alert = &Banner{Kind: BannerWarning, Text: "Duplicate Detected - Review Required. Reason: " + r.Value.FlagReason}
	} else {
		p.Alert = &Banner{Kind: BannerSuccess, Text: "Submitted - No duplicates detected."}
	}
	return p
}

// BeginMine marks a mine request as in flight
func BeginMine(p Page) Page {
	p.MineResult = Mining
	p.MineError = nil
	return p
}

// FinishMine shows the forged block, or the failure
func FinishMine(p Page, r Result[*client.MineResult]) Page {
	if r.Err != nil || r.Value == nil {
		p.MineResult = MiningFailed
		if r.Err != nil {
			p.MineError = &Banner{Kind: BannerError, Text: r.Err.Error()}
		}
		return p
	}
	p.MineResult = fmt.Sprintf("%s - Block %d", r.Value.Message, r.Value.Index)
	p.MineError = nil
	return p
}

// FinishChain shows the chain pretty-printed with a two-space indent
func FinishChain(p Page, r Result[json.RawMessage]) Page {
	if r.Err != nil {
		p.ChainResult = ""
		p.ChainError = &Banner{Kind: BannerError, Text: r.Err.Error()}
		return p
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, r.Value, "", "  "); err != nil {
		p.ChainResult = ""
		p.ChainError = &Banner{Kind: BannerError, Text: "invalid chain JSON: " + err.Error()}
		return p
	}
	p.ChainResult = buf.String()
	p.ChainError = nil
	return p
}
