package security

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
)

// KeyringDiagnostic is emitted when a decrypt falls back past the active key
// or fails on every candidate.
type KeyringDiagnostic struct {
	OccurredAt time.Time
	Outcome    string
	KeyID      string
	Attempted  []string
	Error      string
}

type KeyringDiagnosticHook func(event KeyringDiagnostic)

type KeyringOption func(*Keyring)

type previousKey struct {
	key    MasterKey
	window KeyRotationWindow
}

// Keyring holds the active master key plus retired keys that may still
// decrypt. Only the active key ever encrypts.
type Keyring struct {
	active         MasterKey
	previous       []previousKey
	diagnosticHook KeyringDiagnosticHook
	now            func() time.Time
}

func NewKeyring(active MasterKey, opts ...KeyringOption) (*Keyring, error) {
	if active.IsZero() {
		return nil, core.NewInvalidConfigurationError("security: active master key is required")
	}
	ring := &Keyring{
		active: active,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(ring)
	}
	seen := map[string]struct{}{active.ID(): {}}
	for _, previous := range ring.previous {
		if previous.key.IsZero() {
			return nil, core.NewInvalidConfigurationError("security: previous master key is empty")
		}
		if _, dup := seen[previous.key.ID()]; dup {
			return nil, core.NewInvalidConfigurationError(
				fmt.Sprintf("security: duplicate master key id %q", previous.key.ID()),
			)
		}
		seen[previous.key.ID()] = struct{}{}
	}
	if ring.now == nil {
		ring.now = func() time.Time { return time.Now().UTC() }
	}
	return ring, nil
}

// KeyringFromConfig parses the active and previous hex keys from config.
func KeyringFromConfig(cfg core.EncryptionConfig, opts ...KeyringOption) (*Keyring, error) {
	active, err := ParseMasterKey(cfg.KeyID, cfg.Key)
	if err != nil {
		return nil, err
	}
	options := make([]KeyringOption, 0, len(cfg.PreviousKeys)+len(opts))
	for _, previous := range cfg.PreviousKeys {
		key, err := ParseMasterKey(previous.KeyID, previous.Key)
		if err != nil {
			return nil, err
		}
		options = append(options, WithPreviousKey(key, KeyRotationWindow{NotAfter: previous.NotAfter}))
	}
	return NewKeyring(active, append(options, opts...)...)
}

func WithPreviousKey(key MasterKey, window KeyRotationWindow) KeyringOption {
	return func(r *Keyring) {
		r.previous = append(r.previous, previousKey{key: key, window: window})
	}
}

func WithKeyringDiagnostics(hook KeyringDiagnosticHook) KeyringOption {
	return func(r *Keyring) {
		r.diagnosticHook = hook
	}
}

func WithKeyringClock(now func() time.Time) KeyringOption {
	return func(r *Keyring) {
		r.now = now
	}
}

func (r *Keyring) Active() MasterKey {
	if r == nil {
		return MasterKey{}
	}
	return r.active
}

func (r *Keyring) KeyID() string {
	return r.Active().ID()
}

// Lookup returns any key known to the ring regardless of its window.
func (r *Keyring) Lookup(keyID string) (MasterKey, bool) {
	if r == nil {
		return MasterKey{}, false
	}
	keyID = strings.TrimSpace(keyID)
	if r.active.ID() == keyID {
		return r.active, true
	}
	for _, previous := range r.previous {
		if previous.key.ID() == keyID {
			return previous.key, true
		}
	}
	return MasterKey{}, false
}

// DecryptionKeys lists the active key first, then previous keys whose
// window allows use at the current time.
func (r *Keyring) DecryptionKeys() []MasterKey {
	if r == nil {
		return nil
	}
	now := r.now()
	keys := []MasterKey{r.active}
	for _, previous := range r.previous {
		if previous.window.Allows(now) {
			keys = append(keys, previous.key)
		}
	}
	return keys
}

func (r *Keyring) emit(outcome string, keyID string, attempted []string, err error) {
	if r == nil || r.diagnosticHook == nil {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	r.diagnosticHook(KeyringDiagnostic{
		OccurredAt: r.now().UTC(),
		Outcome:    outcome,
		KeyID:      keyID,
		Attempted:  append([]string(nil), attempted...),
		Error:      msg,
	})
}
