package keys

import (
	"math/big"

	"github.com/btcsuite/btcd/btcec"
)

/*
Keys and signatures are based on elliptic curve cryptography over secp256k1,
the curve also used by Bitcoin and Ethereum. Signatures are produced in the
65-byte compact form, which lets a verifier recover the signer's public key
from the signature and the signed hash alone.
*/

//Parameters of the secp256k1 curve. They are used in other function to verify
//that a private key is valid.
var (
	secp256k1N, _ = new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)
)

// CurveName is the curve tag written in identity key descriptors.
const CurveName = "secp256k1"

//Curve returns btcsuite's golang implementation of secp256k1.
func Curve() *btcec.KoblitzCurve {
	return btcec.S256()
}
