// internal/vault/vault.go
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	appErrors "github.com/mailroom/mailroom-backend/internal/errors"
	"github.com/mailroom/mailroom-backend/internal/model"
)

const (
	kdfIterations = 100_000
	keyLen        = 32
	saltLen       = 16
)

// AccountStore is what the vault needs from credential persistence.
// GetByID returns (nil, nil) when no account exists under the ID.
type AccountStore interface {
	GetByID(id int) (*model.SmtpAccount, error)
	UpdateQuota(id int, sentToday int, lastReset time.Time) error
}

// Vault decrypts SMTP passwords on demand and owns the daily send
// counters. One cipher for all accounts: AES-256-GCM under a
// PBKDF2-SHA256 key, fresh random nonce per encryption, nonce and salt
// persisted alongside the ciphertext.
type Vault struct {
	Accounts AccountStore

	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func New(store AccountStore) *Vault {
	return &Vault{
		Accounts: store,
		locks:    make(map[int]*sync.Mutex),
	}
}

// lockFor returns the per-account mutex, creating it on first use.
// Quota reads and writes for one account are serialized through it so
// two concurrent batches cannot both observe "quota available" and
// jointly overshoot.
func (v *Vault) lockFor(id int) *sync.Mutex {
	v.mu.Lock()
	defer v.mu.Unlock()

	l, ok := v.locks[id]
	if !ok {
		l = &sync.Mutex{}
		v.locks[id] = l
	}
	return l
}

func deriveKey(pin string, salt []byte) []byte {
	return pbkdf2.Key([]byte(pin), salt, kdfIterations, keyLen, sha256.New)
}

// Encrypt seals a plaintext password under a PIN-derived key. Returns
// ciphertext, nonce and salt for storage; nothing is persisted here.
func Encrypt(plaintext, pin string) (ciphertext, nonce, salt []byte, err error) {
	salt = make([]byte, saltLen)
	if _, err = io.ReadFull(rand.Reader, salt); err != nil {
		return nil, nil, nil, err
	}

	block, err := aes.NewCipher(deriveKey(pin, salt))
	if err != nil {
		return nil, nil, nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, nil, err
	}

	nonce = make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, nil, err
	}

	ciphertext = gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return ciphertext, nonce, salt, nil
}

// Unlock loads an account and decrypts its password. A missing account
// and a wrong PIN fail with different error types; every decryption
// problem collapses into the same ErrDecryptionFailed.
func (v *Vault) Unlock(id int, pin string) (*model.Credential, error) {
	acct, err := v.Accounts.GetByID(id)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, appErrors.NewAccountNotFound(id)
	}

	block, err := aes.NewCipher(deriveKey(pin, acct.Salt))
	if err != nil {
		return nil, appErrors.NewDecryptionFailed(id)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, appErrors.NewDecryptionFailed(id)
	}
	if len(acct.Nonce) != gcm.NonceSize() {
		return nil, appErrors.NewDecryptionFailed(id)
	}

	plaintext, err := gcm.Open(nil, acct.Nonce, acct.Ciphertext, nil)
	if err != nil {
		return nil, appErrors.NewDecryptionFailed(id)
	}

	return &model.Credential{
		AccountID: acct.ID,
		Host:      acct.Host,
		Port:      acct.Port,
		UseTLS:    acct.UseTLS,
		Email:     acct.Email,
		Password:  string(plaintext),
	}, nil
}

// CheckQuota reports whether the account may still send today and how
// much allowance remains. A stale counter is reset inside the same
// critical section as the check. Read-only: batches claim allowance
// through Reserve, never through a check-then-record pair.
func (v *Vault) CheckQuota(id int) (allowed bool, remaining int, err error) {
	lock := v.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	acct, err := v.loadAndReset(id)
	if err != nil {
		return false, 0, err
	}

	remaining = acct.DailyLimit - acct.SentToday
	if remaining < 0 {
		remaining = 0
	}
	return remaining > 0, remaining, nil
}

// Reserve claims n sends from today's allowance, or refuses the whole
// reservation with ErrQuotaExceeded. Check and increment happen under
// the per-account lock as one unit, so two concurrent batches can never
// both observe the same remaining allowance and jointly overshoot.
func (v *Vault) Reserve(id, n int) error {
	lock := v.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	acct, err := v.loadAndReset(id)
	if err != nil {
		return err
	}

	remaining := acct.DailyLimit - acct.SentToday
	if remaining < 0 {
		remaining = 0
	}
	if remaining < n {
		return appErrors.NewQuotaExceeded(id, remaining, n)
	}
	return v.Accounts.UpdateQuota(id, acct.SentToday+n, acct.LastResetDate)
}

// Release returns unused allowance from an earlier reservation, for
// recipients that failed or were never attempted. The counter never
// goes below zero.
func (v *Vault) Release(id, n int) error {
	if n <= 0 {
		return nil
	}

	lock := v.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	acct, err := v.loadAndReset(id)
	if err != nil {
		return err
	}

	sent := acct.SentToday - n
	if sent < 0 {
		sent = 0
	}
	return v.Accounts.UpdateQuota(id, sent, acct.LastResetDate)
}

// loadAndReset fetches the account and zeroes the counter the first
// time the date rolls past LastResetDate. Callers must hold the
// per-account lock.
func (v *Vault) loadAndReset(id int) (*model.SmtpAccount, error) {
	acct, err := v.Accounts.GetByID(id)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, appErrors.NewAccountNotFound(id)
	}

	today := dateOf(time.Now())
	if dateOf(acct.LastResetDate).Before(today) {
		acct.SentToday = 0
		acct.LastResetDate = today
		if err := v.Accounts.UpdateQuota(id, 0, today); err != nil {
			return nil, err
		}
	}
	return acct, nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
