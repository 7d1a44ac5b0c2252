package vault

import "fmt"

// osStore models the OS secret store (service="iptv"). This deployment
// target is a headless Linux gateway with no keychain daemon to bind to,
// so every call misses and Store/Retrieve/Delete fall through to the
// encrypted file backend. The type exists so the tagged-variant dispatch
// in Vault has a real first branch to try, matching the two-backend shape
// even where the first backend is unreachable on this platform.
type osStore struct{}

var errNoKeychain = fmt.Errorf("no OS secret store available on this platform")

func (osStore) Store(accountID int64, plaintext string) error {
	return errNoKeychain
}

func (osStore) Retrieve(accountID int64) (string, error) {
	return "", errNoKeychain
}

func (osStore) Delete(accountID int64) error {
	return errNoKeychain
}
