package sa

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/muvarov/strongswan/pkg/crypto"
	"github.com/muvarov/strongswan/pkg/logger"
)

// State Child SA 生命周期状态
type State int

const (
	StateUnallocated State = iota
	StateSpisAllocated
	StateInstalled
	StatePolicyBound
	StateRekeyed
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUnallocated:
		return "unallocated"
	case StateSpisAllocated:
		return "spis_allocated"
	case StateInstalled:
		return "installed"
	case StatePolicyBound:
		return "policy_bound"
	case StateRekeyed:
		return "rekeyed"
	case StateDestroyed:
		return "destroyed"
	default:
		return "?"
	}
}

var (
	// ErrSpiAllocationFailed SPI 分配失败或在当前状态下不允许
	ErrSpiAllocationFailed = errors.New("SPI 分配失败")
	// ErrSaInstallFailed 内核 SA 安装被拒绝
	ErrSaInstallFailed = errors.New("SA 安装失败")
	// ErrPolicyInstallFailed 内核策略安装被拒绝
	ErrPolicyInstallFailed = errors.New("策略安装失败")
	// ErrNoPriorAllocation update 前没有对应的 alloc
	ErrNoPriorAllocation = errors.New("没有预分配的 SPI")
)

// 进程内唯一的 reqid 计数
var reqidCounter uint32

// saRecord 已安装到内核的一条 SA
type saRecord struct {
	spi   uint32
	src   net.IP
	dst   net.IP
	proto Protocol
}

// ChildSA 两台主机之间的一组 IPsec SA (每协议每方向一条，最多四条)
//
// 建立流程:
//   - 发起方 Alloc 预分配 SPI 并写回提议
//   - 响应方选定提议后 Add (分配自己的 SPI、派生密钥、安装内核 SA)
//   - 发起方收到响应后 Update (复用预分配 SPI 完成安装)
//   - 随后 AddPolicies 绑定流量选择器
//
// 单实例由一个交换状态机独占，内部互斥锁只保证串行化，不提供
// 跨实例的并发协调。
type ChildSA struct {
	mu     sync.Mutex
	kernel Kernel
	log    *zap.Logger

	reqid  uint32
	local  net.IP
	remote net.IP

	// 生命周期（秒）
	softLifetime uint64
	hardLifetime uint64

	proposal *Proposal
	// 本端入站 SPI (Alloc/Add 分配)
	spiIn map[Protocol]uint32
	// 对端入站 SPI (从选定的提议读取)
	spiOut map[Protocol]uint32

	installed []saRecord
	policies  []*PolicyConfig
	localTS   []*TrafficSelector
	remoteTS  []*TrafficSelector

	state State
	// rekeyedBy 接替本 SA 的 reqid，0 表示未被接替
	rekeyedBy uint32
}

// NewChildSA 创建 Child SA (预协商阶段: 只有主机对和生命周期)
func NewChildSA(kernel Kernel, local, remote net.IP, softLifetime, hardLifetime uint64) *ChildSA {
	reqid := atomic.AddUint32(&reqidCounter, 1)
	return &ChildSA{
		kernel:       kernel,
		log:          logger.Named("child-sa").With(zap.Uint32("reqid", reqid)),
		reqid:        reqid,
		local:        local,
		remote:       remote,
		softLifetime: softLifetime,
		hardLifetime: hardLifetime,
		spiIn:        make(map[Protocol]uint32),
		spiOut:       make(map[Protocol]uint32),
		state:        StateUnallocated,
	}
}

// Reqid 返回进程内唯一的请求标识
func (c *ChildSA) Reqid() uint32 {
	return c.reqid
}

// State 返回当前生命周期状态
func (c *ChildSA) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SPI 返回某协议某方向的 SPI，未分配时为 0
func (c *ChildSA) SPI(proto Protocol, inbound bool) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if inbound {
		return c.spiIn[proto]
	}
	return c.spiOut[proto]
}

// RekeyedBy 返回接替者 reqid，0 表示未被接替
func (c *ChildSA) RekeyedBy() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rekeyedBy
}

// Alloc 为候选提议中的每个协议分配入站 SPI 并写回提议
// 同协议重复调用复用已分配的 SPI，本次调用内的分配失败会整体回滚。
func (c *ChildSA) Alloc(proposals []*Proposal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateUnallocated && c.state != StateSpisAllocated {
		return fmt.Errorf("%w: 状态 %s 不允许 alloc", ErrSpiAllocationFailed, c.state)
	}

	var fresh []saRecord
	for _, p := range proposals {
		for _, proto := range p.Protocols {
			if spi, ok := c.spiIn[proto]; ok {
				p.SPI[proto] = spi
				continue
			}
			// 入站 SA: 对端 → 本端
			spi, err := c.kernel.AllocSPI(c.remote, c.local, proto)
			if err != nil {
				c.releaseRecords(fresh)
				for _, rec := range fresh {
					delete(c.spiIn, rec.proto)
				}
				return fmt.Errorf("%w: %s: %v", ErrSpiAllocationFailed, proto, err)
			}
			c.spiIn[proto] = spi
			p.SPI[proto] = spi
			fresh = append(fresh, saRecord{spi: spi, src: c.remote, dst: c.local, proto: proto})
		}
	}

	c.state = StateSpisAllocated
	return nil
}

// Add 响应方路径: 分配入站 SPI、派生密钥并安装两个方向的内核 SA
// 提议携带的 SPI 是对端 (发起方) 的入站 SPI。
// 失败时回滚本次调用分配的 SPI 和已安装的 SA。
func (c *ChildSA) Add(p *Proposal, keymat *crypto.PRFPlus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateUnallocated && c.state != StateSpisAllocated {
		return fmt.Errorf("%w: 状态 %s 不允许 add", ErrSaInstallFailed, c.state)
	}

	// 对端 SPI 来自提议，先整体校验再写入
	for _, proto := range p.Protocols {
		if spi, ok := p.SPI[proto]; !ok || spi == 0 {
			return fmt.Errorf("%w: 提议缺少 %s 的对端 SPI", ErrSaInstallFailed, proto)
		}
	}
	for _, proto := range p.Protocols {
		c.spiOut[proto] = p.SPI[proto]
	}

	// 响应方没有预分配，这里分配并写回
	var fresh []saRecord
	rollback := func() {
		c.releaseRecords(fresh)
		for _, rec := range fresh {
			delete(c.spiIn, rec.proto)
		}
		for _, proto := range p.Protocols {
			delete(c.spiOut, proto)
		}
	}
	for _, proto := range p.Protocols {
		if _, ok := c.spiIn[proto]; ok {
			p.SPI[proto] = c.spiIn[proto]
			continue
		}
		spi, err := c.kernel.AllocSPI(c.remote, c.local, proto)
		if err != nil {
			rollback()
			return fmt.Errorf("%w: %s: %v", ErrSpiAllocationFailed, proto, err)
		}
		c.spiIn[proto] = spi
		p.SPI[proto] = spi
		fresh = append(fresh, saRecord{spi: spi, src: c.remote, dst: c.local, proto: proto})
	}

	installed, err := c.installProposal(p, keymat, false)
	if err != nil {
		// 入站状态: 本次分配的由 rollback 释放，先前 alloc 的预留保留
		var release []saRecord
		for _, rec := range installed {
			if spi, ok := c.spiIn[rec.proto]; ok && spi == rec.spi && rec.dst.Equal(c.local) {
				continue
			}
			release = append(release, rec)
		}
		c.releaseRecords(release)
		rollback()
		return err
	}

	c.installed = append(c.installed, installed...)
	c.proposal = p
	c.state = StateInstalled
	c.log.Info("Child SA 已安装 (响应方)", zap.String("sa", c.statusLocked()))
	return nil
}

// Update 发起方路径: 复用 Alloc 预分配的 SPI 完成密钥派生和安装
// 提议携带的 SPI 是对端 (响应方) 的入站 SPI。
func (c *ChildSA) Update(p *Proposal, keymat *crypto.PRFPlus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateSpisAllocated {
		return fmt.Errorf("%w: 状态 %s", ErrNoPriorAllocation, c.state)
	}
	for _, proto := range p.Protocols {
		if _, ok := c.spiIn[proto]; !ok {
			return fmt.Errorf("%w: 协议 %s", ErrNoPriorAllocation, proto)
		}
	}

	for _, proto := range p.Protocols {
		if spi, ok := p.SPI[proto]; !ok || spi == 0 {
			return fmt.Errorf("%w: 提议缺少 %s 的对端 SPI", ErrSaInstallFailed, proto)
		}
	}
	for _, proto := range p.Protocols {
		c.spiOut[proto] = p.SPI[proto]
	}

	installed, err := c.installProposal(p, keymat, true)
	if err != nil {
		// 预分配 SPI 对应的入站状态保留: 对端已知的 SPI 预留不能释放，
		// 重试时以 update 语义覆盖。只回滚本次安装的其余状态。
		var fresh []saRecord
		for _, rec := range installed {
			if spi, ok := c.spiIn[rec.proto]; ok && spi == rec.spi && rec.dst.Equal(c.local) {
				continue
			}
			fresh = append(fresh, rec)
		}
		c.releaseRecords(fresh)
		for _, proto := range p.Protocols {
			delete(c.spiOut, proto)
		}
		return err
	}

	c.installed = append(c.installed, installed...)
	c.proposal = p
	c.state = StateInstalled
	c.log.Info("Child SA 已安装 (发起方)", zap.String("sa", c.statusLocked()))
	return nil
}

// installProposal 按 RFC 7296 2.17 的顺序派生密钥并安装内核 SA
// 密钥流顺序: 发起方→响应方的 SA 优先，加密密钥在完整性密钥之前，
// 协议按其在封装报文中出现的顺序。
func (c *ChildSA) installProposal(p *Proposal, keymat *crypto.PRFPlus, initiator bool) ([]saRecord, error) {
	var installed []saRecord

	encLen, err := p.EncrKeyLen()
	if err != nil {
		return installed, fmt.Errorf("%w: %v", ErrSaInstallFailed, err)
	}
	intLen, err := p.IntegKeyLen()
	if err != nil {
		return installed, fmt.Errorf("%w: %v", ErrSaInstallFailed, err)
	}

	for _, proto := range p.Protocols {
		var derived [][]byte
		take := func(n int) ([]byte, error) {
			k, err := keymat.Bytes(n)
			if err != nil {
				c.zeroKeys(derived...)
				return nil, fmt.Errorf("%w: 密钥派生: %v", ErrSaInstallFailed, err)
			}
			derived = append(derived, k)
			return k, nil
		}
		encI, err := take(encLen)
		if err != nil {
			return installed, err
		}
		intI, err := take(intLen)
		if err != nil {
			return installed, err
		}
		encR, err := take(encLen)
		if err != nil {
			return installed, err
		}
		intR, err := take(intLen)
		if err != nil {
			return installed, err
		}

		// 发起方出站用 i→r 密钥; 响应方入站用 i→r 密钥
		encIn, intIn := encI, intI
		encOut, intOut := encR, intR
		if initiator {
			encIn, intIn = encR, intR
			encOut, intOut = encI, intI
		}

		saIn := &SAConfig{
			Src: c.remote, Dst: c.local,
			SPI: c.spiIn[proto], Proto: proto, Reqid: c.reqid, Inbound: true,
			EncrID: p.EncrID, EncrKey: encIn,
			IntegID: p.IntegID, IntegKey: intIn,
			IsAEAD:       IsAEAD(p.EncrID),
			SoftLifetime: c.softLifetime, HardLifetime: c.hardLifetime,
		}
		saOut := &SAConfig{
			Src: c.local, Dst: c.remote,
			SPI: c.spiOut[proto], Proto: proto, Reqid: c.reqid, Inbound: false,
			EncrID: p.EncrID, EncrKey: encOut,
			IntegID: p.IntegID, IntegKey: intOut,
			IsAEAD:       IsAEAD(p.EncrID),
			SoftLifetime: c.softLifetime, HardLifetime: c.hardLifetime,
		}

		// 先装本端入站，再装出站
		if err := c.kernel.AddSA(saIn); err != nil {
			c.zeroKeys(encI, intI, encR, intR)
			return installed, fmt.Errorf("%w: %s 入站 SPI 0x%08x: %v",
				ErrSaInstallFailed, proto, saIn.SPI, err)
		}
		installed = append(installed, saRecord{spi: saIn.SPI, src: saIn.Src, dst: saIn.Dst, proto: proto})

		if err := c.kernel.AddSA(saOut); err != nil {
			c.zeroKeys(encI, intI, encR, intR)
			return installed, fmt.Errorf("%w: %s 出站 SPI 0x%08x: %v",
				ErrSaInstallFailed, proto, saOut.SPI, err)
		}
		installed = append(installed, saRecord{spi: saOut.SPI, src: saOut.Src, dst: saOut.Dst, proto: proto})

		// 密钥已交给内核，立即清零本地副本
		c.zeroKeys(encI, intI, encR, intR)
	}

	return installed, nil
}

func (c *ChildSA) zeroKeys(keys ...[]byte) {
	for _, k := range keys {
		crypto.Zero(k)
	}
}

// releaseRecords 逆序删除内核状态，错误只记日志 (回滚路径)
func (c *ChildSA) releaseRecords(records []saRecord) {
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if err := c.kernel.DelSA(rec.spi, rec.src, rec.dst, rec.proto); err != nil {
			c.log.Warn("回滚删除 SA 失败",
				zap.Uint32("spi", rec.spi), zap.String("proto", rec.proto.String()), zap.Error(err))
		}
	}
}

// AddPolicies 安装绑定到本 SA 的流量策略
// 每对 (本端, 对端) 选择器生成 out/in/fwd 三条策略。
// 相同选择器重复调用是空操作，失败回滚本次调用安装的策略。
func (c *ChildSA) AddPolicies(localTS, remoteTS []*TrafficSelector) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateInstalled && c.state != StatePolicyBound {
		return fmt.Errorf("%w: 状态 %s 不允许安装策略", ErrPolicyInstallFailed, c.state)
	}
	if c.state == StatePolicyBound &&
		selectorsEqual(c.localTS, localTS) && selectorsEqual(c.remoteTS, remoteTS) {
		return nil
	}

	outTmpls := c.policyTmpls(true)
	inTmpls := c.policyTmpls(false)

	var added []*PolicyConfig
	for _, lts := range localTS {
		for _, rts := range remoteTS {
			configs := []*PolicyConfig{
				{
					Dir: DirOut, Src: lts.Net(), Dst: rts.Net(),
					Tmpls: outTmpls, Reqid: c.reqid,
				},
				{
					Dir: DirIn, Src: rts.Net(), Dst: lts.Net(),
					Tmpls: inTmpls, Reqid: c.reqid,
				},
				{
					Dir: DirFwd, Src: rts.Net(), Dst: lts.Net(),
					Tmpls: inTmpls, Reqid: c.reqid,
				},
			}
			for _, cfg := range configs {
				if err := c.kernel.AddPolicy(cfg); err != nil {
					for i := len(added) - 1; i >= 0; i-- {
						if derr := c.kernel.DelPolicy(added[i]); derr != nil {
							c.log.Warn("回滚删除策略失败", zap.Error(derr))
						}
					}
					return fmt.Errorf("%w: %s: %v", ErrPolicyInstallFailed, cfg.Dir, err)
				}
				added = append(added, cfg)
			}
		}
	}

	c.policies = append(c.policies, added...)
	c.localTS = append([]*TrafficSelector(nil), localTS...)
	c.remoteTS = append([]*TrafficSelector(nil), remoteTS...)
	c.state = StatePolicyBound
	return nil
}

// policyTmpls 为提议的每个协议生成一个策略模板
func (c *ChildSA) policyTmpls(outbound bool) []PolicyTmpl {
	protos := []Protocol{ProtoESP}
	if c.proposal != nil && len(c.proposal.Protocols) > 0 {
		protos = c.proposal.Protocols
	}
	tmpls := make([]PolicyTmpl, 0, len(protos))
	for _, proto := range protos {
		if outbound {
			tmpls = append(tmpls, PolicyTmpl{
				Src: c.local, Dst: c.remote, Proto: proto, SPI: c.spiOut[proto],
			})
		} else {
			tmpls = append(tmpls, PolicyTmpl{
				Src: c.remote, Dst: c.local, Proto: proto, SPI: c.spiIn[proto],
			})
		}
	}
	return tmpls
}

// SetRekeyed 标记本 SA 已被 reqid 为 successor 的新 SA 接替
// 策略所有权移交给接替者: 本 SA 销毁时不再拆除策略，
// SPI 和内核 SA 保留，在途流量仍可解密。
func (c *ChildSA) SetRekeyed(successor uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDestroyed {
		return
	}
	c.rekeyedBy = successor
	c.state = StateRekeyed
	c.log.Info("Child SA 已被接替", zap.Uint32("successor", successor))
}

// Destroy 释放所有内核 SA、策略 (未被接替时) 和密钥状态
// 任意状态下可调用，幂等。
func (c *ChildSA) Destroy() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDestroyed {
		return nil
	}

	var err error

	// 已安装的 SA
	for i := len(c.installed) - 1; i >= 0; i-- {
		rec := c.installed[i]
		err = multierr.Append(err, c.kernel.DelSA(rec.spi, rec.src, rec.dst, rec.proto))
	}

	// 分配了 SPI 但从未安装的 larval 状态
	for proto, spi := range c.spiIn {
		found := false
		for _, rec := range c.installed {
			if rec.proto == proto && rec.spi == spi {
				found = true
				break
			}
		}
		if !found {
			err = multierr.Append(err, c.kernel.DelSA(spi, c.remote, c.local, proto))
		}
	}

	// 被接替的 SA 不拥有策略，由接替者继续使用
	if c.rekeyedBy == 0 {
		for i := len(c.policies) - 1; i >= 0; i-- {
			err = multierr.Append(err, c.kernel.DelPolicy(c.policies[i]))
		}
	}

	c.installed = nil
	c.policies = nil
	c.spiIn = make(map[Protocol]uint32)
	c.spiOut = make(map[Protocol]uint32)
	c.state = StateDestroyed

	if err != nil {
		c.log.Warn("Child SA 销毁时部分清理失败", zap.Error(err))
	}
	return err
}

// Status 人类可读的状态投影 (只读，无副作用)
func (c *ChildSA) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *ChildSA) statusLocked() string {
	var b strings.Builder
	fmt.Fprintf(&b, "reqid %d [%s]: %s...%s", c.reqid, c.state, c.local, c.remote)
	if c.proposal != nil {
		for _, proto := range c.proposal.Protocols {
			fmt.Fprintf(&b, ", %s in 0x%08x out 0x%08x", proto, c.spiIn[proto], c.spiOut[proto])
		}
	} else {
		for proto, spi := range c.spiIn {
			fmt.Fprintf(&b, ", %s in 0x%08x", proto, spi)
		}
	}
	fmt.Fprintf(&b, ", 生命周期 soft %ds hard %ds", c.softLifetime, c.hardLifetime)
	if c.rekeyedBy != 0 {
		fmt.Fprintf(&b, ", 已被 reqid %d 接替", c.rekeyedBy)
	}
	return b.String()
}

// LogStatus 把状态投影写入日志
func (c *ChildSA) LogStatus(name string) {
	c.log.Info(name, zap.String("status", c.Status()))
}
