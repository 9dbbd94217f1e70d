package tls

import (
	"github.com/muvarov/strongswan/pkg/crypto"
)

// CipherSuite TLS 密码套件码 (IANA 注册的 16 位值)
type CipherSuite uint16

const (
	TLS_RSA_WITH_NULL_MD5           CipherSuite = 0x0001
	TLS_RSA_WITH_NULL_SHA           CipherSuite = 0x0002
	TLS_RSA_WITH_3DES_EDE_CBC_SHA   CipherSuite = 0x000a
	TLS_RSA_WITH_AES_128_CBC_SHA    CipherSuite = 0x002f
	TLS_RSA_WITH_AES_256_CBC_SHA    CipherSuite = 0x0035
	TLS_RSA_WITH_NULL_SHA256        CipherSuite = 0x003b
	TLS_RSA_WITH_AES_128_CBC_SHA256 CipherSuite = 0x003c
)

// suiteAlgs 套件到具体算法组合的映射
type suiteAlgs struct {
	suite    CipherSuite
	hash     crypto.HashID
	prf      crypto.PRFID
	mac      crypto.SignerID
	encr     crypto.CrypterID
	encrSize int
}

// 套件目录，每个套件只出现一次
var suiteAlgsTable = []suiteAlgs{
	{TLS_RSA_WITH_NULL_MD5,
		crypto.HASH_MD5,
		crypto.PRF_HMAC_MD5,
		crypto.AUTH_HMAC_MD5_128,
		crypto.ENCR_NULL, 0,
	},
	{TLS_RSA_WITH_NULL_SHA,
		crypto.HASH_SHA1,
		crypto.PRF_HMAC_SHA1,
		crypto.AUTH_HMAC_SHA1_160,
		crypto.ENCR_NULL, 0,
	},
	{TLS_RSA_WITH_NULL_SHA256,
		crypto.HASH_SHA2_256,
		crypto.PRF_HMAC_SHA2_256,
		crypto.AUTH_HMAC_SHA2_256_256,
		crypto.ENCR_NULL, 0,
	},
	{TLS_RSA_WITH_AES_128_CBC_SHA,
		crypto.HASH_SHA1,
		crypto.PRF_HMAC_SHA1,
		crypto.AUTH_HMAC_SHA1_160,
		crypto.ENCR_AES_CBC, 16,
	},
	{TLS_RSA_WITH_AES_256_CBC_SHA,
		crypto.HASH_SHA1,
		crypto.PRF_HMAC_SHA1,
		crypto.AUTH_HMAC_SHA1_160,
		crypto.ENCR_AES_CBC, 32,
	},
	{TLS_RSA_WITH_3DES_EDE_CBC_SHA,
		crypto.HASH_SHA1,
		crypto.PRF_HMAC_SHA1,
		crypto.AUTH_HMAC_SHA1_160,
		crypto.ENCR_3DES, 24,
	},
	{TLS_RSA_WITH_AES_128_CBC_SHA256,
		crypto.HASH_SHA2_256,
		crypto.PRF_HMAC_SHA2_256,
		crypto.AUTH_HMAC_SHA2_256_256,
		crypto.ENCR_AES_CBC, 16,
	},
}

// findSuite 在目录中查找套件的算法组合
func findSuite(suite CipherSuite) *suiteAlgs {
	for i := range suiteAlgsTable {
		if suiteAlgsTable[i].suite == suite {
			return &suiteAlgsTable[i]
		}
	}
	return nil
}
