package sa

import "net"

// Protocol IPsec 协议 (IKEv2 协议 ID)
type Protocol uint8

const (
	ProtoAH  Protocol = 2
	ProtoESP Protocol = 3
)

func (p Protocol) String() string {
	switch p {
	case ProtoAH:
		return "AH"
	case ProtoESP:
		return "ESP"
	default:
		return "?"
	}
}

// Dir 策略方向
type Dir int

const (
	DirOut Dir = iota
	DirIn
	DirFwd
)

func (d Dir) String() string {
	switch d {
	case DirOut:
		return "out"
	case DirIn:
		return "in"
	case DirFwd:
		return "fwd"
	default:
		return "?"
	}
}

// SAConfig 内核 SA 安装参数
type SAConfig struct {
	Src   net.IP
	Dst   net.IP
	SPI   uint32
	Proto Protocol
	Reqid uint32
	// Inbound 入站 SA (解密对端流量)
	Inbound bool

	// IKEv2 算法 ID 与密钥
	EncrID   AlgorithmID
	EncrKey  []byte
	IntegID  AlgorithmID
	IntegKey []byte
	IsAEAD   bool

	// 生命周期（秒）
	SoftLifetime uint64
	HardLifetime uint64
}

// PolicyTmpl 策略模板，引用一条 SA
// 双协议 (AH+ESP) 策略携带多个模板，每个协议一个。
type PolicyTmpl struct {
	Src   net.IP
	Dst   net.IP
	Proto Protocol
	SPI   uint32
}

// PolicyConfig 内核策略安装参数
type PolicyConfig struct {
	Dir   Dir
	Src   *net.IPNet
	Dst   *net.IPNet
	Tmpls []PolicyTmpl
	Reqid uint32
}

// Kernel 内核 SA/策略操作契约
// 由平台驱动实现 (Linux 下是 netlink/XFRM)，测试用内存伪实现。
// 所有调用都是同步阻塞的，失败必须返回错误而不是部分生效。
type Kernel interface {
	// AllocSPI 为主机对分配唯一 SPI (内核建立 larval 状态)
	AllocSPI(src, dst net.IP, proto Protocol) (uint32, error)
	// AddSA 安装一条 SA
	// 入站 SA 覆盖 AllocSPI 为同一 SPI 建立的 larval 状态，
	// larval 状态已不存在时仍须安装成功。
	AddSA(cfg *SAConfig) error
	// DelSA 删除 SA，不存在时应幂等返回 nil
	DelSA(spi uint32, src, dst net.IP, proto Protocol) error
	// AddPolicy 安装一条策略
	AddPolicy(cfg *PolicyConfig) error
	// DelPolicy 删除策略，不存在时应幂等返回 nil
	DelPolicy(cfg *PolicyConfig) error
}
