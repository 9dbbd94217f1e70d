package sa

import (
	"encoding/binary"
	"fmt"
	"net"
)

// TrafficSelector 流量选择器: 地址范围 + 端口范围 + IP 协议
type TrafficSelector struct {
	// IPProtocol 0 表示任意
	IPProtocol uint8
	StartPort  uint16
	EndPort    uint16
	StartAddr  net.IP
	EndAddr    net.IP
}

// NewTrafficSelectorIPv4 创建 IPv4 地址范围选择器
func NewTrafficSelectorIPv4(start, end net.IP, startPort, endPort uint16) *TrafficSelector {
	return &TrafficSelector{
		StartPort: startPort,
		EndPort:   endPort,
		StartAddr: start.To4(),
		EndAddr:   end.To4(),
	}
}

// Equal 选择器逐字段比较
func (ts *TrafficSelector) Equal(other *TrafficSelector) bool {
	if ts == nil || other == nil {
		return ts == other
	}
	return ts.IPProtocol == other.IPProtocol &&
		ts.StartPort == other.StartPort &&
		ts.EndPort == other.EndPort &&
		ts.StartAddr.Equal(other.StartAddr) &&
		ts.EndAddr.Equal(other.EndAddr)
}

// Net 把地址范围转换为策略用的子网
// 范围正好是一个 CIDR 块时返回对应前缀，否则退化为起始地址的主机路由。
func (ts *TrafficSelector) Net() *net.IPNet {
	ip4s := ts.StartAddr.To4()
	ip4e := ts.EndAddr.To4()
	if ip4s == nil || ip4e == nil {
		return &net.IPNet{IP: ts.StartAddr, Mask: net.CIDRMask(128, 128)}
	}

	start := binary.BigEndian.Uint32(ip4s)
	end := binary.BigEndian.Uint32(ip4e)
	for ones := 0; ones <= 32; ones++ {
		mask := uint32(0xffffffff)
		if ones < 32 {
			mask = ^(uint32(0xffffffff) >> uint(ones))
		}
		if ones == 0 {
			mask = 0
		}
		if start&mask == start && start|^mask == end {
			return &net.IPNet{IP: ip4s, Mask: net.CIDRMask(ones, 32)}
		}
	}
	return &net.IPNet{IP: ip4s, Mask: net.CIDRMask(32, 32)}
}

func (ts *TrafficSelector) String() string {
	return fmt.Sprintf("%s-%s[%d-%d/%d]",
		ts.StartAddr, ts.EndAddr, ts.StartPort, ts.EndPort, ts.IPProtocol)
}

// selectorsEqual 两组选择器逐个比较 (顺序敏感)
func selectorsEqual(a, b []*TrafficSelector) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
