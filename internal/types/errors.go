package types

import "fmt"

// ErrorKind tags the category of a CoreError, covering admission,
// flow-control, and integrity failures.
type ErrorKind string

const (
	ErrInvalidVersion    ErrorKind = "invalid_version"
	ErrInvalidNonce      ErrorKind = "invalid_nonce"
	ErrInvalidValue      ErrorKind = "invalid_value"
	ErrInvalidChainID    ErrorKind = "invalid_chain_id"
	ErrInvalidValidUntil ErrorKind = "invalid_valid_until"
	ErrDuplicateTx       ErrorKind = "duplicate_tx"
	ErrInvalidHash       ErrorKind = "invalid_hash"
	ErrInvalidSender     ErrorKind = "invalid_sender"
	ErrKmsUnavailable    ErrorKind = "kms_unavailable"
	ErrEmptyWitness      ErrorKind = "empty_witness"
	ErrEmptyBody         ErrorKind = "empty_body"
	ErrNoneProposal      ErrorKind = "none_proposal"

	ErrProposalTooLow          ErrorKind = "proposal_too_low"
	ErrProposalTooHigh         ErrorKind = "proposal_too_high"
	ErrNoCandidate             ErrorKind = "no_candidate"
	ErrNoEarlyStatus           ErrorKind = "no_early_status"
	ErrNoForkTree              ErrorKind = "no_fork_tree"
	ErrProposalCheckError      ErrorKind = "proposal_check_error"
	ErrCandidateChainBroken    ErrorKind = "candidate_chain_interrupted"
	ErrCandidateChainDupTx     ErrorKind = "candidate_chain_has_dup_tx"
	ErrCandidateChainNoProof   ErrorKind = "candidate_chain_has_no_proof"
	ErrCandidateChainDoesntFit ErrorKind = "candidate_chain_does_not_fit"
	ErrBlockCheckError         ErrorKind = "block_check_error"

	ErrInternal ErrorKind = "internal"
	ErrEncode   ErrorKind = "encode_error"
	ErrDecode   ErrorKind = "decode_error"
)

// CoreError is the tagged-union error type returned by the Authenticator,
// Pool, and Chain modules, so the RPC layer can map admission/check
// failures to a stable external status without string-matching error text.
type CoreError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *CoreError) Unwrap() error { return e.Cause }

// NewCoreError builds a CoreError with no underlying cause.
func NewCoreError(kind ErrorKind, message string) *CoreError {
	return &CoreError{Kind: kind, Message: message}
}

// WrapCoreError builds a CoreError wrapping an underlying cause, used where
// a collaborator RPC, a storage call, an encode or a decode failed.
func WrapCoreError(kind ErrorKind, message string, cause error) *CoreError {
	return &CoreError{Kind: kind, Message: message, Cause: cause}
}

// IsKind reports whether err is a *CoreError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	ce, ok := err.(*CoreError)
	if !ok {
		return false
	}
	return ce.Kind == kind
}
