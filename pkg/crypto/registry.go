package crypto

// Registry 本地算法能力注册表
// 枚举本地支持的完整性和加密算法，并按需创建实例。
// 枚举到但创建失败的算法视为运行时不可用，由调用方跳过。
type Registry interface {
	// Signers 枚举支持的完整性算法
	Signers() []SignerID
	// Crypters 枚举支持的加密算法
	Crypters() []CrypterID
	// CreateSigner 创建完整性算法实例
	CreateSigner(id SignerID) (Signer, error)
	// CreateCrypter 创建加密算法实例
	CreateCrypter(id CrypterID, keySize int) (Crypter, error)
	// CreatePRF 创建 PRF 实例
	CreatePRF(id PRFID) (PRF, error)
}

type defaultRegistry struct{}

// DefaultRegistry 基于标准库实现的注册表
func DefaultRegistry() Registry {
	return defaultRegistry{}
}

func (defaultRegistry) Signers() []SignerID {
	return []SignerID{
		AUTH_HMAC_SHA2_256_256,
		AUTH_HMAC_SHA1_160,
		AUTH_HMAC_MD5_128,
		// 没有对应套件，协商器应跳过
		AUTH_HMAC_SHA2_384_384,
	}
}

func (defaultRegistry) Crypters() []CrypterID {
	return []CrypterID{
		ENCR_AES_CBC,
		ENCR_3DES,
	}
}

func (defaultRegistry) CreateSigner(id SignerID) (Signer, error) {
	return GetSigner(id)
}

func (defaultRegistry) CreateCrypter(id CrypterID, keySize int) (Crypter, error) {
	return GetCrypter(id, keySize)
}

func (defaultRegistry) CreatePRF(id PRFID) (PRF, error) {
	return GetPRF(id)
}
