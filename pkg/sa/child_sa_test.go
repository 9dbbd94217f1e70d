package sa

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"

	"github.com/muvarov/strongswan/pkg/crypto"
)

// saKey XFRM 按 {SPI, 目的地址} 索引状态
type saKey struct {
	spi uint32
	dst string
}

// memKernel 内存伪内核: 记录 SA/策略，可注入失败
type memKernel struct {
	nextSPI uint32
	// larval + 已安装 SA
	sas map[saKey]*SAConfig
	// 策略，键为 dir|src|dst
	policies map[string]*PolicyConfig

	failAlloc       bool
	failAllocAfter  int // 第 N+1 次分配开始失败
	allocCalls      int
	failAddSAAt     int // 第 N 次 AddSA 失败，0 表示不失败
	addSACalls      int
	failAddPolicyAt int
	addPolicyCalls  int
	// strictInbound 入站安装要求 larval/既有状态存在 (纯 update 语义)
	strictInbound bool
}

func newMemKernel() *memKernel {
	return &memKernel{
		sas:      make(map[saKey]*SAConfig),
		policies: make(map[string]*PolicyConfig),
	}
}

func (k *memKernel) lookup(spi uint32, dst net.IP) *SAConfig {
	return k.sas[saKey{spi, dst.String()}]
}

func (k *memKernel) AllocSPI(src, dst net.IP, proto Protocol) (uint32, error) {
	k.allocCalls++
	if k.failAlloc || (k.failAllocAfter > 0 && k.allocCalls > k.failAllocAfter) {
		return 0, errors.New("SPI 耗尽")
	}
	k.nextSPI++
	spi := 0xc0000000 + k.nextSPI
	k.sas[saKey{spi, dst.String()}] = &SAConfig{Src: src, Dst: dst, SPI: spi, Proto: proto}
	return spi, nil
}

func (k *memKernel) AddSA(cfg *SAConfig) error {
	k.addSACalls++
	if k.failAddSAAt > 0 && k.addSACalls >= k.failAddSAAt {
		return errors.New("内核拒绝")
	}
	key := saKey{cfg.SPI, cfg.Dst.String()}
	if k.strictInbound && cfg.Inbound {
		if _, ok := k.sas[key]; !ok {
			return errors.New("状态不存在")
		}
	}
	cp := *cfg
	cp.EncrKey = append([]byte(nil), cfg.EncrKey...)
	cp.IntegKey = append([]byte(nil), cfg.IntegKey...)
	k.sas[key] = &cp
	return nil
}

func (k *memKernel) DelSA(spi uint32, src, dst net.IP, proto Protocol) error {
	delete(k.sas, saKey{spi, dst.String()})
	return nil
}

func policyKey(cfg *PolicyConfig) string {
	return fmt.Sprintf("%s|%s|%s", cfg.Dir, cfg.Src, cfg.Dst)
}

func (k *memKernel) AddPolicy(cfg *PolicyConfig) error {
	k.addPolicyCalls++
	if k.failAddPolicyAt > 0 && k.addPolicyCalls >= k.failAddPolicyAt {
		return errors.New("内核拒绝")
	}
	k.policies[policyKey(cfg)] = cfg
	return nil
}

func (k *memKernel) DelPolicy(cfg *PolicyConfig) error {
	delete(k.policies, policyKey(cfg))
	return nil
}

// installedSAs 已安装 (带密钥) 的 SA 数量
func (k *memKernel) installedSAs() int {
	n := 0
	for _, cfg := range k.sas {
		if len(cfg.EncrKey) > 0 {
			n++
		}
	}
	return n
}

var (
	testLocal  = net.IPv4(192, 0, 2, 1)
	testRemote = net.IPv4(198, 51, 100, 1)
)

func testProposal() *Proposal {
	p := NewProposal(ProtoESP)
	p.EncrID = ENCR_AES_CBC
	p.EncrKeyBits = 128
	p.IntegID = AUTH_HMAC_SHA1_96
	return p
}

func testKeymat(t *testing.T) *crypto.PRFPlus {
	t.Helper()
	prf, err := crypto.GetPRF(crypto.PRF_HMAC_SHA2_256)
	if err != nil {
		t.Fatalf("获取 PRF 失败: %v", err)
	}
	return crypto.NewPRFPlus(prf, []byte("sk_d-material-for-tests!"), []byte("nonce-i|nonce-r"))
}

// TestAllocWritesBackSPI Alloc 分配入站 SPI 并写回提议
func TestAllocWritesBackSPI(t *testing.T) {
	k := newMemKernel()
	c := NewChildSA(k, testLocal, testRemote, 3300, 3600)
	p := testProposal()

	if err := c.Alloc([]*Proposal{p}); err != nil {
		t.Fatalf("Alloc 失败: %v", err)
	}
	if c.State() != StateSpisAllocated {
		t.Errorf("状态错误: %s", c.State())
	}
	if p.SPI[ProtoESP] == 0 {
		t.Error("SPI 未写回提议")
	}
	if c.SPI(ProtoESP, true) != p.SPI[ProtoESP] {
		t.Error("内部记录的 SPI 与提议不一致")
	}

	// 重复 Alloc 复用同一 SPI
	p2 := testProposal()
	if err := c.Alloc([]*Proposal{p2}); err != nil {
		t.Fatalf("重复 Alloc 失败: %v", err)
	}
	if p2.SPI[ProtoESP] != p.SPI[ProtoESP] {
		t.Error("重复 Alloc 不应分配新 SPI")
	}
}

// TestSpiUniqueness 同一主机对连续分配的 SPI 两两不同
func TestSpiUniqueness(t *testing.T) {
	k := newMemKernel()
	seen := make(map[uint32]bool)
	for i := 0; i < 16; i++ {
		c := NewChildSA(k, testLocal, testRemote, 3300, 3600)
		p := testProposal()
		if err := c.Alloc([]*Proposal{p}); err != nil {
			t.Fatalf("Alloc #%d 失败: %v", i, err)
		}
		spi := p.SPI[ProtoESP]
		if seen[spi] {
			t.Fatalf("SPI 0x%08x 重复分配", spi)
		}
		seen[spi] = true
	}
}

// TestAllocRollback 分配中途失败时回滚本次已分配的 SPI
func TestAllocRollback(t *testing.T) {
	k := newMemKernel()
	k.failAllocAfter = 1
	c := NewChildSA(k, testLocal, testRemote, 3300, 3600)

	p := NewProposal(ProtoAH, ProtoESP)
	p.EncrID = ENCR_AES_CBC
	p.IntegID = AUTH_HMAC_SHA1_96

	err := c.Alloc([]*Proposal{p})
	if !errors.Is(err, ErrSpiAllocationFailed) {
		t.Fatalf("want ErrSpiAllocationFailed, got %v", err)
	}
	if c.State() != StateUnallocated {
		t.Errorf("失败后状态应保持 unallocated: %s", c.State())
	}
	if len(k.sas) != 0 {
		t.Errorf("larval SPI 未回滚: %d", len(k.sas))
	}
}

// TestAddResponder 响应方 Add: 分配入站 SPI、派生密钥、安装四向中的两条
func TestAddResponder(t *testing.T) {
	k := newMemKernel()
	c := NewChildSA(k, testLocal, testRemote, 3300, 3600)

	p := testProposal()
	peerSPI := uint32(0x11223344)
	p.SPI[ProtoESP] = peerSPI

	if err := c.Add(p, testKeymat(t)); err != nil {
		t.Fatalf("Add 失败: %v", err)
	}
	if c.State() != StateInstalled {
		t.Errorf("状态错误: %s", c.State())
	}
	if c.SPI(ProtoESP, false) != peerSPI {
		t.Error("出站 SPI 应为对端提议携带的值")
	}
	inSPI := c.SPI(ProtoESP, true)
	if inSPI == 0 || inSPI == peerSPI {
		t.Errorf("入站 SPI 非法: 0x%08x", inSPI)
	}
	if p.SPI[ProtoESP] != inSPI {
		t.Error("本端入站 SPI 未写回提议")
	}
	if k.installedSAs() != 2 {
		t.Errorf("应安装 2 条 SA, 实际 %d", k.installedSAs())
	}

	// 响应方入站使用密钥流最前面的 (发起方→响应方) 密钥
	prf, _ := crypto.GetPRF(crypto.PRF_HMAC_SHA2_256)
	want, _ := crypto.PrfPlus(prf, []byte("sk_d-material-for-tests!"), []byte("nonce-i|nonce-r"), 72)
	saIn := k.lookup(inSPI, testLocal)
	if saIn == nil || !saIn.Inbound {
		t.Fatal("入站 SA 未安装")
	}
	if !bytes.Equal(saIn.EncrKey, want[0:16]) {
		t.Error("入站加密密钥不是密钥流的第一段")
	}
	if !bytes.Equal(saIn.IntegKey, want[16:36]) {
		t.Error("入站完整性密钥错误")
	}
	saOut := k.lookup(peerSPI, testRemote)
	if saOut == nil || saOut.Inbound {
		t.Fatal("出站 SA 未安装")
	}
	if !bytes.Equal(saOut.EncrKey, want[36:52]) {
		t.Error("出站加密密钥不是密钥流的第二段")
	}
}

// TestAddAEAD AEAD 提议: 密钥含 salt，无独立完整性密钥
func TestAddAEAD(t *testing.T) {
	k := newMemKernel()
	c := NewChildSA(k, testLocal, testRemote, 3300, 3600)

	p := NewProposal(ProtoESP)
	p.EncrID = ENCR_AES_GCM_16
	p.EncrKeyBits = 128
	p.SPI[ProtoESP] = 0x11223344

	if err := c.Add(p, testKeymat(t)); err != nil {
		t.Fatalf("Add 失败: %v", err)
	}
	saIn := k.lookup(c.SPI(ProtoESP, true), testLocal)
	if saIn == nil {
		t.Fatal("入站 SA 未安装")
	}
	if !saIn.IsAEAD {
		t.Error("SA 未标记为 AEAD")
	}
	// 128 位密钥 + 4 字节 salt
	if len(saIn.EncrKey) != 20 {
		t.Errorf("AEAD 密钥长度错误: %d", len(saIn.EncrKey))
	}
	if len(saIn.IntegKey) != 0 {
		t.Error("AEAD 不应有独立完整性密钥")
	}
}

// TestUpdateRequiresAlloc 没有预分配时 Update 必须拒绝
func TestUpdateRequiresAlloc(t *testing.T) {
	k := newMemKernel()
	c := NewChildSA(k, testLocal, testRemote, 3300, 3600)
	p := testProposal()
	p.SPI[ProtoESP] = 0x55667788

	if err := c.Update(p, testKeymat(t)); !errors.Is(err, ErrNoPriorAllocation) {
		t.Fatalf("want ErrNoPriorAllocation, got %v", err)
	}
}

// TestInitiatorResponderMirror 发起方出站密钥 == 响应方入站密钥
func TestInitiatorResponderMirror(t *testing.T) {
	ki := newMemKernel()
	initiator := NewChildSA(ki, testLocal, testRemote, 3300, 3600)
	pi := testProposal()
	if err := initiator.Alloc([]*Proposal{pi}); err != nil {
		t.Fatalf("发起方 Alloc 失败: %v", err)
	}

	kr := newMemKernel()
	responder := NewChildSA(kr, testRemote, testLocal, 3300, 3600)
	pr := testProposal()
	pr.SPI[ProtoESP] = pi.SPI[ProtoESP] // 发起方提议送达响应方

	if err := responder.Add(pr, testKeymat(t)); err != nil {
		t.Fatalf("响应方 Add 失败: %v", err)
	}

	// 响应方应答送达发起方
	pi.SPI[ProtoESP] = responder.SPI(ProtoESP, true)
	if err := initiator.Update(pi, testKeymat(t)); err != nil {
		t.Fatalf("发起方 Update 失败: %v", err)
	}

	// 发起方出站 SA 目的是对端，响应方入站 SA 目的是响应方本端 (testRemote)
	iOut := ki.lookup(initiator.SPI(ProtoESP, false), testRemote)
	rIn := kr.lookup(responder.SPI(ProtoESP, true), testRemote)
	if iOut == nil || rIn == nil {
		t.Fatal("SA 缺失")
	}
	if !bytes.Equal(iOut.EncrKey, rIn.EncrKey) {
		t.Error("发起方出站加密密钥 != 响应方入站加密密钥")
	}
	if !bytes.Equal(iOut.IntegKey, rIn.IntegKey) {
		t.Error("发起方出站完整性密钥 != 响应方入站完整性密钥")
	}

	iIn := ki.lookup(initiator.SPI(ProtoESP, true), testLocal)
	rOut := kr.lookup(responder.SPI(ProtoESP, false), testLocal)
	if iIn == nil || rOut == nil {
		t.Fatal("SA 缺失")
	}
	if !bytes.Equal(iIn.EncrKey, rOut.EncrKey) {
		t.Error("发起方入站加密密钥 != 响应方出站加密密钥")
	}
	if bytes.Equal(iOut.EncrKey, iIn.EncrKey) {
		t.Error("两个方向不应使用相同的加密密钥")
	}
}

// TestAddRollbackKeepsPriorAllocation Add 失败回滚本次状态，
// 先前 Alloc 的 SPI 保留，允许重试
func TestAddRollbackKeepsPriorAllocation(t *testing.T) {
	k := newMemKernel()
	c := NewChildSA(k, testLocal, testRemote, 3300, 3600)
	p := testProposal()
	if err := c.Alloc([]*Proposal{p}); err != nil {
		t.Fatalf("Alloc 失败: %v", err)
	}
	allocated := p.SPI[ProtoESP]

	k.failAddSAAt = 2 // 出站安装失败
	p2 := testProposal()
	p2.SPI[ProtoESP] = 0x11223344
	err := c.Add(p2, testKeymat(t))
	if !errors.Is(err, ErrSaInstallFailed) {
		t.Fatalf("want ErrSaInstallFailed, got %v", err)
	}
	if c.State() != StateSpisAllocated {
		t.Errorf("失败后状态应保持 spis_allocated: %s", c.State())
	}
	if c.SPI(ProtoESP, true) != allocated {
		t.Error("先前分配的 SPI 不应被回滚")
	}
	// 对端已知的入站 SPI 预留保留，出站状态回滚
	if k.lookup(allocated, testLocal) == nil {
		t.Error("预分配的入站状态被释放")
	}
	if k.lookup(0x11223344, testRemote) != nil {
		t.Error("失败后不应残留出站 SA")
	}

	// 重试成功
	k.failAddSAAt = 0
	p3 := testProposal()
	p3.SPI[ProtoESP] = 0x11223344
	if err := c.Add(p3, testKeymat(t)); err != nil {
		t.Fatalf("重试 Add 失败: %v", err)
	}
	if c.SPI(ProtoESP, true) != allocated {
		t.Error("重试应复用先前分配的 SPI")
	}
}

// TestUpdateRollbackKeepsInbound 入站安装是 update 语义 (覆盖 larval)，
// Update 失败回滚不得删除预分配的入站状态，否则重试的 update 无处可覆盖
func TestUpdateRollbackKeepsInbound(t *testing.T) {
	k := newMemKernel()
	k.strictInbound = true
	c := NewChildSA(k, testLocal, testRemote, 3300, 3600)
	p := testProposal()
	if err := c.Alloc([]*Proposal{p}); err != nil {
		t.Fatalf("Alloc 失败: %v", err)
	}
	allocated := p.SPI[ProtoESP]

	k.failAddSAAt = 2 // 出站安装失败
	p2 := testProposal()
	p2.SPI[ProtoESP] = 0x55667788
	if err := c.Update(p2, testKeymat(t)); !errors.Is(err, ErrSaInstallFailed) {
		t.Fatalf("want ErrSaInstallFailed, got %v", err)
	}
	if k.lookup(allocated, testLocal) == nil {
		t.Fatal("失败回滚删除了预分配的入站状态")
	}
	if k.lookup(0x55667788, testRemote) != nil {
		t.Error("失败后不应残留出站 SA")
	}

	// 重试: 入站覆盖既有状态，出站重新安装
	k.failAddSAAt = 0
	p3 := testProposal()
	p3.SPI[ProtoESP] = 0x55667788
	if err := c.Update(p3, testKeymat(t)); err != nil {
		t.Fatalf("重试 Update 失败: %v", err)
	}
	if c.SPI(ProtoESP, true) != allocated {
		t.Error("重试应复用预分配的 SPI")
	}
}

// TestAddPoliciesDualProtocol 双协议提议的每条策略携带每个协议一个模板
func TestAddPoliciesDualProtocol(t *testing.T) {
	k := newMemKernel()
	c := NewChildSA(k, testLocal, testRemote, 3300, 3600)

	p := NewProposal(ProtoAH, ProtoESP)
	p.EncrID = ENCR_AES_CBC
	p.EncrKeyBits = 128
	p.IntegID = AUTH_HMAC_SHA1_96
	p.SPI[ProtoAH] = 0x0a0a0a0a
	p.SPI[ProtoESP] = 0x0b0b0b0b
	if err := c.Add(p, testKeymat(t)); err != nil {
		t.Fatalf("Add 失败: %v", err)
	}
	local, remote := testSelectors()
	if err := c.AddPolicies(local, remote); err != nil {
		t.Fatalf("AddPolicies 失败: %v", err)
	}

	for _, cfg := range k.policies {
		if len(cfg.Tmpls) != 2 {
			t.Fatalf("%s 策略模板数错误: %d", cfg.Dir, len(cfg.Tmpls))
		}
		for _, tmpl := range cfg.Tmpls {
			var want uint32
			if cfg.Dir == DirOut {
				want = c.SPI(tmpl.Proto, false)
			} else {
				want = c.SPI(tmpl.Proto, true)
			}
			if tmpl.SPI != want || tmpl.SPI == 0 {
				t.Errorf("%s 策略 %s 模板 SPI 错误: 0x%08x, want 0x%08x",
					cfg.Dir, tmpl.Proto, tmpl.SPI, want)
			}
		}
		if cfg.Tmpls[0].Proto == cfg.Tmpls[1].Proto {
			t.Errorf("%s 策略的两个模板协议相同", cfg.Dir)
		}
	}
}

func installedSA(t *testing.T, k *memKernel) *ChildSA {
	t.Helper()
	c := NewChildSA(k, testLocal, testRemote, 3300, 3600)
	p := testProposal()
	p.SPI[ProtoESP] = 0x11223344
	if err := c.Add(p, testKeymat(t)); err != nil {
		t.Fatalf("Add 失败: %v", err)
	}
	return c
}

func testSelectors() (local, remote []*TrafficSelector) {
	local = []*TrafficSelector{
		NewTrafficSelectorIPv4(net.IPv4(10, 1, 0, 0), net.IPv4(10, 1, 255, 255), 0, 65535),
	}
	remote = []*TrafficSelector{
		NewTrafficSelectorIPv4(net.IPv4(0, 0, 0, 0), net.IPv4(255, 255, 255, 255), 0, 65535),
	}
	return
}

// TestAddPolicies 每对选择器安装 out/in/fwd 三条策略，重复调用幂等
func TestAddPolicies(t *testing.T) {
	k := newMemKernel()
	c := installedSA(t, k)
	local, remote := testSelectors()

	if err := c.AddPolicies(local, remote); err != nil {
		t.Fatalf("AddPolicies 失败: %v", err)
	}
	if c.State() != StatePolicyBound {
		t.Errorf("状态错误: %s", c.State())
	}
	if len(k.policies) != 3 {
		t.Errorf("应安装 3 条策略, 实际 %d", len(k.policies))
	}

	calls := k.addPolicyCalls
	if err := c.AddPolicies(local, remote); err != nil {
		t.Fatalf("幂等调用失败: %v", err)
	}
	if k.addPolicyCalls != calls {
		t.Error("相同选择器重复调用不应再访问内核")
	}
}

// TestAddPoliciesOutOfOrder 未安装 SA 前不允许绑定策略
func TestAddPoliciesOutOfOrder(t *testing.T) {
	k := newMemKernel()
	c := NewChildSA(k, testLocal, testRemote, 3300, 3600)
	local, remote := testSelectors()

	if err := c.AddPolicies(local, remote); !errors.Is(err, ErrPolicyInstallFailed) {
		t.Fatalf("want ErrPolicyInstallFailed, got %v", err)
	}
}

// TestAddPoliciesRollback 策略安装中途失败时回滚本次安装
func TestAddPoliciesRollback(t *testing.T) {
	k := newMemKernel()
	c := installedSA(t, k)
	k.failAddPolicyAt = 3
	local, remote := testSelectors()

	if err := c.AddPolicies(local, remote); !errors.Is(err, ErrPolicyInstallFailed) {
		t.Fatalf("want ErrPolicyInstallFailed, got %v", err)
	}
	if len(k.policies) != 0 {
		t.Errorf("失败后不应残留策略: %d", len(k.policies))
	}
	if c.State() != StateInstalled {
		t.Errorf("失败后状态应保持 installed: %s", c.State())
	}
}

// TestRekeyHandoff 被接替的 SA 销毁时不拆除策略，接替者销毁时才拆除
func TestRekeyHandoff(t *testing.T) {
	k := newMemKernel()
	old := installedSA(t, k)
	local, remote := testSelectors()
	if err := old.AddPolicies(local, remote); err != nil {
		t.Fatalf("旧 SA AddPolicies 失败: %v", err)
	}

	successor := installedSA(t, k)
	// 接替者复用相同的策略 (内核按键覆盖)
	if err := successor.AddPolicies(local, remote); err != nil {
		t.Fatalf("新 SA AddPolicies 失败: %v", err)
	}

	old.SetRekeyed(successor.Reqid())
	if old.State() != StateRekeyed {
		t.Errorf("状态错误: %s", old.State())
	}
	if old.RekeyedBy() != successor.Reqid() {
		t.Error("接替者 reqid 未记录")
	}

	if err := old.Destroy(); err != nil {
		t.Fatalf("销毁旧 SA 失败: %v", err)
	}
	if len(k.policies) != 3 {
		t.Errorf("旧 SA 销毁不应移除策略: 剩 %d 条", len(k.policies))
	}

	if err := successor.Destroy(); err != nil {
		t.Fatalf("销毁新 SA 失败: %v", err)
	}
	if len(k.policies) != 0 {
		t.Errorf("接替者销毁后应移除策略: 剩 %d 条", len(k.policies))
	}
}

// TestDestroyIdempotent 重复销毁不报错且不重复释放
func TestDestroyIdempotent(t *testing.T) {
	k := newMemKernel()
	c := installedSA(t, k)

	if err := c.Destroy(); err != nil {
		t.Fatalf("第一次销毁失败: %v", err)
	}
	if len(k.sas) != 0 {
		t.Errorf("销毁后不应残留 SA: %d", len(k.sas))
	}
	if err := c.Destroy(); err != nil {
		t.Fatalf("重复销毁报错: %v", err)
	}
	if c.State() != StateDestroyed {
		t.Errorf("状态错误: %s", c.State())
	}
}

// TestDestroyReleasesLarval 只分配未安装的 SPI 也要释放
func TestDestroyReleasesLarval(t *testing.T) {
	k := newMemKernel()
	c := NewChildSA(k, testLocal, testRemote, 3300, 3600)
	if err := c.Alloc([]*Proposal{testProposal()}); err != nil {
		t.Fatalf("Alloc 失败: %v", err)
	}
	if len(k.sas) != 1 {
		t.Fatalf("应有 1 条 larval 状态: %d", len(k.sas))
	}
	if err := c.Destroy(); err != nil {
		t.Fatalf("销毁失败: %v", err)
	}
	if len(k.sas) != 0 {
		t.Errorf("larval SPI 未释放: %d", len(k.sas))
	}
}

// TestStatusProjection 状态投影包含 reqid、协议和 SPI
func TestStatusProjection(t *testing.T) {
	k := newMemKernel()
	c := installedSA(t, k)

	s := c.Status()
	if !strings.Contains(s, fmt.Sprintf("reqid %d", c.Reqid())) {
		t.Errorf("状态缺少 reqid: %s", s)
	}
	if !strings.Contains(s, "ESP") {
		t.Errorf("状态缺少协议: %s", s)
	}
	if !strings.Contains(s, fmt.Sprintf("0x%08x", c.SPI(ProtoESP, true))) {
		t.Errorf("状态缺少入站 SPI: %s", s)
	}
}

// TestSelectorNet 选择器范围转子网
func TestSelectorNet(t *testing.T) {
	cases := []struct {
		start, end string
		want       string
	}{
		{"10.0.0.0", "10.0.255.255", "10.0.0.0/16"},
		{"0.0.0.0", "255.255.255.255", "0.0.0.0/0"},
		{"192.0.2.7", "192.0.2.7", "192.0.2.7/32"},
		// 非对齐范围退化为主机路由
		{"10.0.0.5", "10.0.0.9", "10.0.0.5/32"},
	}
	for _, tc := range cases {
		ts := NewTrafficSelectorIPv4(net.ParseIP(tc.start), net.ParseIP(tc.end), 0, 65535)
		if got := ts.Net().String(); got != tc.want {
			t.Errorf("%s-%s: got %s, want %s", tc.start, tc.end, got, tc.want)
		}
	}
}
