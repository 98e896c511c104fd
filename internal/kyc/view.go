package kyc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pendergraft/dappkit/internal/artifact"
)

const (
	NotConnected    = "Not Connected"
	SubmitLabel     = "Submit KYC"
	ProcessingLabel = "Processing..."

	StatusRegistered    = "Registered"
	StatusNotRegistered = "Not Registered"

	MsgContractLoaded = "Contract loaded successfully!"
	MsgRegistered     = "KYC Registered Successfully"

	MsgNotDeployed       = "Smart contract not deployed on this network!"
	MsgMissingFields     = "All fields are required!"
	MsgContractNotLoaded = "Contract not loaded"
	MsgTransactionFailed = "Transaction Failed"
	MsgStaleSession      = "Wallet network or account changed; re-run connect"
)

// alerts maps known errors to portal wording; detail is the format for
// whatever the error wraps after the sentinel
var alerts = []struct {
	err    error
	msg    string
	detail string
}{
	{artifact.ErrNotDeployed, MsgNotDeployed, "%s (%s)"},
	{ErrMissingFields, MsgMissingFields, "%s (%s)"},
	{ErrContractNotLoaded, MsgContractNotLoaded, "%s (%s)"},
	{ErrStaleSession, MsgStaleSession, "%s (%s)"},
	{ErrTransactionFailed, MsgTransactionFailed, "%s: %s"},
}

// alertText renders err in the portal's wording
func alertText(err error) string {
	for _, a := range alerts {
		if !errors.Is(err, a.err) {
			continue
		}
		rest, ok := strings.CutPrefix(err.Error(), a.err.Error())
		rest = strings.TrimPrefix(rest, ": ")
		if !ok || rest == "" {
			return a.msg
		}
		return fmt.Sprintf(a.detail, a.msg, rest)
	}
	return err.Error()
}

// View is the KYC portal's visible state. Transitions return a new View.
type View struct {
	Account    string
	Contract   string
	Loading    bool
	ButtonText string
	Status     string
	// Alert is the most recent message shown to the user.
	Alert string
}

// NewView is the portal before bootstrap
func NewView() View {
	return View{Account: NotConnected, ButtonText: SubmitLabel}
}

// Connected shows the session's account and whether the contract loaded
func Connected(v View, s *Session) View {
	v.Account = s.Account.Hex()
	if s.Handle != nil {
		v.Contract = s.Handle.Address.Hex()
		v.Alert = MsgContractLoaded
	}
	return v
}

// BootstrapFailed reports a bootstrap error. A partial session still shows its account.
func BootstrapFailed(v View, s *Session, err error) View {
	if s != nil {
		v.Account = s.Account.Hex()
	}
	v.Contract = ""
	v.Alert = alertText(err)
	return v
}

// BeginRegister disables the submit button while a registration is in flight
func BeginRegister(v View) View {
	v.Loading = true
	v.ButtonText = ProcessingLabel
	return v
}

// FinishRegister re-enables the button and reports the outcome
func FinishRegister(v View, res *TxResult, err error) View {
	v.Loading = false
	v.ButtonText = SubmitLabel
	if err != nil {
		v.Alert = alertText(err)
		return v
	}
	v.Status = StatusRegistered
	v.Alert = fmt.Sprintf("%s (tx %s, block %d)", MsgRegistered, res.Hash.Hex(), res.BlockNumber)
	return v
}

// FinishStatus shows the registration status
func FinishStatus(v View, registered bool, err error) View {
	if err != nil {
		v.Alert = alertText(err)
		return v
	}
	if registered {
		v.Status = StatusRegistered
	} else {
		v.Status = StatusNotRegistered
	}
	return v
}

// Alert sets the message shown to the user
func Alert(v View, msg string) View {
	v.Alert = msg
	return v
}
