package provider

import (
	"crypto"
	"crypto/aes"
	"crypto/md5"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/go-pay/gopay"
	"github.com/go-pay/crypto/xpem"

	"github.com/quanpay/server/internal/utils/random"
)

// canonicalSigningString assembles the string every channel signature is
// taken over: drop the listed keys and empty values, trim surrounding
// whitespace from values, sort k=v pairs lexicographically, join with "&".
// All sign and verify calls go through here so the "remove sign before
// verifying" rule is enforced in one place.
func canonicalSigningString(bm gopay.BodyMap, drop ...string) string {
	dropped := make(map[string]struct{}, len(drop))
	for _, k := range drop {
		dropped[k] = struct{}{}
	}
	pairs := make([]string, 0, len(bm))
	for k := range bm {
		if _, ok := dropped[k]; ok {
			continue
		}
		v := strings.TrimSpace(bm.GetString(k))
		if v == "" {
			continue
		}
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

// signRSA signs content with PKCS#1 v1.5 over the given digest and returns
// the base64 signature. MAPI signs with SHA-1, OpenAPI with SHA-256.
func signRSA(content, privateKeyPEM string, hash crypto.Hash) (string, error) {
	priv, err := xpem.DecodePrivateKey([]byte(privateKeyPEM))
	if err != nil {
		return "", fmt.Errorf("%w: decode rsa private key: %v", ErrUnexpected, err)
	}
	h := hash.New()
	h.Write([]byte(content))
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, hash, h.Sum(nil))
	if err != nil {
		return "", fmt.Errorf("%w: rsa sign: %v", ErrUnexpected, err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// verifyRSA checks a base64 PKCS#1 v1.5 signature over content.
func verifyRSA(content, sign, publicKeyPEM string, hash crypto.Hash) error {
	pub, err := xpem.DecodePublicKey([]byte(publicKeyPEM))
	if err != nil {
		return fmt.Errorf("%w: decode rsa public key: %v", ErrUnexpected, err)
	}
	raw, err := base64.StdEncoding.DecodeString(sign)
	if err != nil {
		return fmt.Errorf("%w: decode signature: %v", ErrUnexpected, err)
	}
	h := hash.New()
	h.Write([]byte(content))
	if err := rsa.VerifyPKCS1v15(pub, hash, h.Sum(nil), raw); err != nil {
		return fmt.Errorf("%w: wrong rsa signature", ErrChannelAPI)
	}
	return nil
}

// signWeChatMD5 computes the WeChat V2 keyed-MD5 signature: uppercase hex of
// MD5(canonical + "&key=" + key). The sign field itself is always excluded.
func signWeChatMD5(bm gopay.BodyMap, key string) string {
	content := canonicalSigningString(bm, "sign") + "&key=" + key
	sum := md5.Sum([]byte(content))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// verifyWeChatMD5 recomputes the V2 signature and compares it to the sign
// field carried in bm.
func verifyWeChatMD5(bm gopay.BodyMap, key string) bool {
	return bm.GetString("sign") == signWeChatMD5(bm, key)
}

// decryptAES256ECB decrypts a base64 AES-256-ECB ciphertext with PKCS#7
// padding and no IV. The AES key is the lowercase hex MD5 of the channel
// key, which WeChat defines for req_info in refund notifications.
func decryptAES256ECB(cipherB64, key string) ([]byte, error) {
	sum := md5.Sum([]byte(key))
	aesKey := hex.EncodeToString(sum[:])
	data, err := base64.StdEncoding.DecodeString(cipherB64)
	if err != nil {
		return nil, fmt.Errorf("%w: decode ciphertext: %v", ErrUnexpected, err)
	}
	block, err := aes.NewCipher([]byte(aesKey))
	if err != nil {
		return nil, fmt.Errorf("%w: init aes cipher: %v", ErrUnexpected, err)
	}
	bs := block.BlockSize()
	if len(data) == 0 || len(data)%bs != 0 {
		return nil, fmt.Errorf("%w: ciphertext not block aligned", ErrUnexpected)
	}
	plain := make([]byte, len(data))
	for i := 0; i < len(data); i += bs {
		block.Decrypt(plain[i:i+bs], data[i:i+bs])
	}
	return stripPKCS7(plain, bs)
}

func stripPKCS7(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("%w: bad pkcs7 padding", ErrUnexpected)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: bad pkcs7 padding", ErrUnexpected)
		}
	}
	return data[:len(data)-n], nil
}

// nonceStr returns the 32-character [0-9A-Za-z] nonce WeChat requests carry.
func nonceStr() string {
	return random.Alphanumeric(32)
}
