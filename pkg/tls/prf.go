package tls

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"hash"

	"github.com/muvarov/strongswan/pkg/crypto"
)

// PRF TLS 伪随机函数
// SetKey 绑定 secret，Bytes 按 label|seed 生成任意长度的密钥流
type PRF interface {
	SetKey(secret []byte)
	Bytes(label string, seed []byte, n int) []byte
}

// P_hash (RFC 5246 5 节)
// A(0) = seed
// A(i) = HMAC_hash(secret, A(i-1))
// P_hash = HMAC_hash(secret, A(1)|seed) | HMAC_hash(secret, A(2)|seed) | ...
func pHash(newHash func() hash.Hash, secret, seed []byte, n int) []byte {
	var out []byte
	a := seed
	for len(out) < n {
		h := hmac.New(newHash, secret)
		h.Write(a)
		a = h.Sum(nil)

		h = hmac.New(newHash, secret)
		h.Write(a)
		h.Write(seed)
		out = append(out, h.Sum(nil)...)
	}
	return out[:n]
}

// TLS 1.0/1.1 PRF: P_MD5(S1) XOR P_SHA1(S2)
// S1 是 secret 的前半，S2 是后半，奇数长度时中间字节重叠
type prf10 struct {
	s1 []byte
	s2 []byte
}

// NewPRF10 创建 TLS 1.0/1.1 的 MD5/SHA1 组合 PRF
func NewPRF10() PRF {
	return &prf10{}
}

func (p *prf10) SetKey(secret []byte) {
	crypto.Zero(p.s1)
	crypto.Zero(p.s2)
	half := (len(secret) + 1) / 2
	p.s1 = append([]byte(nil), secret[:half]...)
	p.s2 = append([]byte(nil), secret[len(secret)-half:]...)
}

func (p *prf10) Bytes(label string, seed []byte, n int) []byte {
	ls := append([]byte(label), seed...)
	m := pHash(md5.New, p.s1, ls, n)
	s := pHash(sha1.New, p.s2, ls, n)
	for i := range m {
		m[i] ^= s[i]
	}
	crypto.Zero(s)
	return m
}

// TLS 1.2 PRF: 使用协商出的哈希的单一 P_hash
type prf12 struct {
	prf    crypto.PRF
	secret []byte
}

// NewPRF12 创建 TLS 1.2 的 PRF，哈希由注册表按套件的 PRF ID 提供
func NewPRF12(registry crypto.Registry, id crypto.PRFID) (PRF, error) {
	inner, err := registry.CreatePRF(id)
	if err != nil {
		return nil, err
	}
	return &prf12{prf: inner}, nil
}

func (p *prf12) SetKey(secret []byte) {
	crypto.Zero(p.secret)
	p.secret = append([]byte(nil), secret...)
}

func (p *prf12) Bytes(label string, seed []byte, n int) []byte {
	ls := append([]byte(label), seed...)
	return pHash(func() hash.Hash { return p.prf.Hash() }, p.secret, ls, n)
}

const masterSecretLen = 48

// deriveMasterSecret 从 premaster 派生 48 字节主密钥
// seed = client_random | server_random
func deriveMasterSecret(prf PRF, premaster, clientRandom, serverRandom []byte) []byte {
	seed := make([]byte, 0, len(clientRandom)+len(serverRandom))
	seed = append(seed, clientRandom...)
	seed = append(seed, serverRandom...)
	prf.SetKey(premaster)
	return prf.Bytes("master secret", seed, masterSecretLen)
}

// deriveKeyBlock 派生密钥块，prf 须已绑定主密钥
// seed = server_random | client_random (与主密钥派生相反，协议规定)
// 输出 2*(mks+eks+ivs) 字节
func deriveKeyBlock(prf PRF, clientRandom, serverRandom []byte, mks, eks, ivs int) []byte {
	seed := make([]byte, 0, len(clientRandom)+len(serverRandom))
	seed = append(seed, serverRandom...)
	seed = append(seed, clientRandom...)
	return prf.Bytes("key expansion", seed, (mks+eks+ivs)*2)
}
