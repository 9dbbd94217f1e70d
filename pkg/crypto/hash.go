package crypto

// HashID 哈希算法标识
type HashID uint16

const (
	HASH_MD5      HashID = 1
	HASH_SHA1     HashID = 2
	HASH_SHA2_256 HashID = 4
	HASH_SHA2_384 HashID = 5
)
