package utils

import "golang.org/x/crypto/bcrypt"

// HashPIN returns the bcrypt hash of a patron PIN using the given
// cost. PINs are short numeric secrets chosen at the circulation desk,
// so the work factor matters more than for long passwords; cost comes
// from BCRYPT_COST in the config rather than bcrypt.DefaultCost so
// deployments can raise it without a rebuild. Length/format policy is
// enforced by the ILS that issues the cards, not here.
func HashPIN(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPIN safely compares a bcrypt hash and a plain PIN.
func VerifyPIN(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
