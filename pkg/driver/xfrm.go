package driver

import (
	"errors"
	"fmt"
	"net"

	"github.com/iniwex5/netlink"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/muvarov/strongswan/pkg/logger"
	"github.com/muvarov/strongswan/pkg/sa"
)

// 抗重放窗口默认值
const defaultReplayWindow = 32

// XFRM 基于 Linux XFRM 子系统的 sa.Kernel 实现
// 所有 SA 都以 tunnel 模式安装。可选地限定在一个网络命名空间内执行，
// 需要 CAP_NET_ADMIN 权限。
type XFRM struct {
	ns  *NetNS
	log *zap.Logger
}

var _ sa.Kernel = (*XFRM)(nil)

// NewXFRM 创建在当前命名空间操作的 XFRM 驱动
func NewXFRM() *XFRM {
	return &XFRM{log: logger.Named("xfrm")}
}

// NewXFRMInNS 创建限定在指定命名空间内操作的 XFRM 驱动
func NewXFRMInNS(ns *NetNS) *XFRM {
	return &XFRM{ns: ns, log: logger.Named("xfrm").With(zap.String("netns", ns.Name()))}
}

// run 在目标命名空间内执行 fn
func (x *XFRM) run(fn func() error) error {
	if x.ns != nil {
		return x.ns.RunInNS(fn)
	}
	return fn()
}

func xfrmProto(p sa.Protocol) netlink.Proto {
	if p == sa.ProtoAH {
		return netlink.XFRM_PROTO_AH
	}
	return netlink.XFRM_PROTO_ESP
}

func xfrmDir(d sa.Dir) netlink.Dir {
	switch d {
	case sa.DirIn:
		return netlink.XFRM_DIR_IN
	case sa.DirFwd:
		return netlink.XFRM_DIR_FWD
	default:
		return netlink.XFRM_DIR_OUT
	}
}

// AllocSPI 让内核分配唯一 SPI 并建立 larval 状态
func (x *XFRM) AllocSPI(src, dst net.IP, proto sa.Protocol) (uint32, error) {
	var spi uint32
	err := x.run(func() error {
		state, err := netlink.XfrmStateAllocSpi(&netlink.XfrmState{
			Src:   src,
			Dst:   dst,
			Proto: xfrmProto(proto),
			Mode:  netlink.XFRM_MODE_TUNNEL,
		})
		if err != nil {
			return fmt.Errorf("分配 SPI (src=%v dst=%v proto=%s) 失败: %v", src, dst, proto, err)
		}
		spi = uint32(state.Spi)
		return nil
	})
	if err != nil {
		return 0, err
	}
	x.log.Debug("已分配 SPI",
		zap.String("proto", proto.String()), zap.String("spi", fmt.Sprintf("0x%08x", spi)))
	return spi, nil
}

// AddSA 安装一条 XFRM SA
// 已有同 SPI 的 larval 状态时使用 update 语义覆盖。
func (x *XFRM) AddSA(cfg *sa.SAConfig) error {
	state := &netlink.XfrmState{
		Src:          cfg.Src,
		Dst:          cfg.Dst,
		Proto:        xfrmProto(cfg.Proto),
		Mode:         netlink.XFRM_MODE_TUNNEL,
		Spi:          int(cfg.SPI),
		Reqid:        int(cfg.Reqid),
		ReplayWindow: defaultReplayWindow,
		// tunnel mode SA 设置 XFRM_STATE_AF_UNSPEC，允许处理任意地址族的流量
		AFUnspec: true,
		Limits: netlink.XfrmStateLimits{
			TimeSoft: cfg.SoftLifetime,
			TimeHard: cfg.HardLifetime,
		},
	}

	if cfg.IsAEAD {
		name, err := encrAlgName(cfg.EncrID)
		if err != nil {
			return err
		}
		icv, err := aeadICVBits(cfg.EncrID)
		if err != nil {
			return err
		}
		state.Aead = &netlink.XfrmStateAlgo{
			Name:   name,
			Key:    cfg.EncrKey,
			ICVLen: icv,
		}
	} else {
		if cfg.EncrID != 0 {
			name, err := encrAlgName(cfg.EncrID)
			if err != nil {
				return err
			}
			state.Crypt = &netlink.XfrmStateAlgo{
				Name: name,
				Key:  cfg.EncrKey,
			}
		}
		if cfg.IntegID != 0 {
			name, trunc, err := integAlgName(cfg.IntegID)
			if err != nil {
				return err
			}
			state.Auth = &netlink.XfrmStateAlgo{
				Name:        name,
				Key:         cfg.IntegKey,
				TruncateLen: trunc,
			}
		}
	}

	err := x.run(func() error {
		// 入站 SA 的 SPI 由 AllocSPI 预先占位，update 覆盖 larval 状态。
		// larval 已不存在时 (失败回滚后的重试) 回退为 add。
		if cfg.Inbound {
			uerr := netlink.XfrmStateUpdate(state)
			if errors.Is(uerr, unix.ESRCH) {
				return netlink.XfrmStateAdd(state)
			}
			return uerr
		}
		return netlink.XfrmStateAdd(state)
	})
	if err != nil {
		return fmt.Errorf("安装 XFRM SA (spi=0x%08x src=%v dst=%v) 失败: %v",
			cfg.SPI, cfg.Src, cfg.Dst, err)
	}

	x.log.Debug("已安装 SA",
		zap.String("proto", cfg.Proto.String()),
		zap.String("spi", fmt.Sprintf("0x%08x", cfg.SPI)),
		zap.Bool("inbound", cfg.Inbound),
		zap.Uint32("reqid", cfg.Reqid))
	return nil
}

// DelSA 删除 XFRM SA，不存在时幂等返回 nil
func (x *XFRM) DelSA(spi uint32, src, dst net.IP, proto sa.Protocol) error {
	err := x.run(func() error {
		return netlink.XfrmStateDel(&netlink.XfrmState{
			Src:   src,
			Dst:   dst,
			Proto: xfrmProto(proto),
			Spi:   int(spi),
		})
	})
	if err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("删除 XFRM SA (spi=0x%08x) 失败: %v", spi, err)
	}
	return nil
}

func (x *XFRM) buildPolicy(cfg *sa.PolicyConfig) *netlink.XfrmPolicy {
	tmpls := make([]netlink.XfrmPolicyTmpl, 0, len(cfg.Tmpls))
	for _, t := range cfg.Tmpls {
		src := t.Src
		if ip4 := src.To4(); ip4 != nil {
			src = ip4
		}
		dst := t.Dst
		if ip4 := dst.To4(); ip4 != nil {
			dst = ip4
		}
		tmpls = append(tmpls, netlink.XfrmPolicyTmpl{
			Src:   src,
			Dst:   dst,
			Proto: xfrmProto(t.Proto),
			Mode:  netlink.XFRM_MODE_TUNNEL,
			Spi:   int(t.SPI),
			Reqid: int(cfg.Reqid),
		})
	}
	return &netlink.XfrmPolicy{
		Src:   cfg.Src,
		Dst:   cfg.Dst,
		Dir:   xfrmDir(cfg.Dir),
		Tmpls: tmpls,
	}
}

// AddPolicy 安装一条 XFRM 策略
// 使用 update 语义 (XFRM_MSG_UPDPOLICY) 覆盖同选择器的残留策略。
func (x *XFRM) AddPolicy(cfg *sa.PolicyConfig) error {
	err := x.run(func() error {
		return netlink.XfrmPolicyUpdate(x.buildPolicy(cfg))
	})
	if err != nil {
		return fmt.Errorf("安装 XFRM 策略 (dir=%s src=%v dst=%v) 失败: %v",
			cfg.Dir, cfg.Src, cfg.Dst, err)
	}
	x.log.Debug("已安装策略",
		zap.String("dir", cfg.Dir.String()),
		zap.String("src", cfg.Src.String()),
		zap.String("dst", cfg.Dst.String()))
	return nil
}

// DelPolicy 删除 XFRM 策略，不存在时幂等返回 nil
func (x *XFRM) DelPolicy(cfg *sa.PolicyConfig) error {
	err := x.run(func() error {
		return netlink.XfrmPolicyDel(&netlink.XfrmPolicy{
			Src: cfg.Src,
			Dst: cfg.Dst,
			Dir: xfrmDir(cfg.Dir),
		})
	})
	if err != nil {
		if errors.Is(err, unix.ESRCH) || errors.Is(err, unix.ENOENT) {
			return nil
		}
		return fmt.Errorf("删除 XFRM 策略 (dir=%s) 失败: %v", cfg.Dir, err)
	}
	return nil
}

// FlushAll 清空所有 XFRM SA 和策略 (前置清理)
func (x *XFRM) FlushAll() {
	_ = x.run(func() error {
		_ = netlink.XfrmStateFlush(0)
		_ = netlink.XfrmPolicyFlush()
		return nil
	})
}
