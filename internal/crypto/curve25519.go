package crypto

import "golang.org/x/crypto/curve25519"

// curve25519PublicFromPrivate recomputes the Curve25519 public key for a
// private scalar, the same base-point scalar multiplication the pack's
// other Curve25519 users (ericlagergren-dr, cloudflared's token package)
// rely on golang.org/x/crypto/curve25519 for.
func curve25519PublicFromPrivate(priv [privateKeySize]byte) ([publicKeySize]byte, error) {
	var pub [publicKeySize]byte
	out, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return pub, err
	}
	copy(pub[:], out)
	return pub, nil
}
