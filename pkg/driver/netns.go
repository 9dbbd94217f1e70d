package driver

import (
	"fmt"
	"runtime"

	"github.com/iniwex5/netlink"
	"github.com/vishvananda/netns"
)

// NetNS 表示一个网络命名空间
// XFRM 驱动可以限定在命名空间内操作，用于多租户隔离和集成测试。
type NetNS struct {
	name   string
	handle netns.NsHandle
	// origin 原始命名空间句柄，用于恢复
	origin netns.NsHandle
}

// NewNetNS 创建新的命名网络命名空间
func NewNetNS(name string) (*NetNS, error) {
	origin, err := netns.Get()
	if err != nil {
		return nil, fmt.Errorf("获取原始 netns 失败: %v", err)
	}

	handle, err := netns.NewNamed(name)
	if err != nil {
		origin.Close()
		return nil, fmt.Errorf("创建 netns %s 失败: %v", name, err)
	}

	return &NetNS{
		name:   name,
		handle: handle,
		origin: origin,
	}, nil
}

// AttachNetNS 打开已存在的命名网络命名空间
func AttachNetNS(name string) (*NetNS, error) {
	origin, err := netns.Get()
	if err != nil {
		return nil, fmt.Errorf("获取原始 netns 失败: %v", err)
	}

	handle, err := netns.GetFromName(name)
	if err != nil {
		origin.Close()
		return nil, fmt.Errorf("打开 netns %s 失败: %v", name, err)
	}

	return &NetNS{
		name:   name,
		handle: handle,
		origin: origin,
	}, nil
}

// Enter 进入网络命名空间并锁定 OS 线程
// 需要 CAP_SYS_ADMIN 权限。
func (ns *NetNS) Enter() error {
	runtime.LockOSThread()

	if !ns.handle.IsOpen() || !ns.origin.IsOpen() {
		runtime.UnlockOSThread()
		return fmt.Errorf("netns %s 句柄不可用", ns.name)
	}
	if err := netns.Set(ns.handle); err != nil {
		runtime.UnlockOSThread()
		return fmt.Errorf("切换 netns %s 失败: %v", ns.name, err)
	}
	return nil
}

// Exit 恢复到原始命名空间并解锁 OS 线程
func (ns *NetNS) Exit() error {
	if ns.origin.IsOpen() {
		if err := netns.Set(ns.origin); err != nil {
			runtime.UnlockOSThread()
			return fmt.Errorf("恢复原始 netns 失败: %v", err)
		}
	}
	runtime.UnlockOSThread()
	return nil
}

// RunInNS 在命名空间内执行函数，返回前恢复原始命名空间
func (ns *NetNS) RunInNS(fn func() error) error {
	if err := ns.Enter(); err != nil {
		return err
	}
	defer ns.Exit()
	return fn()
}

// MoveInterface 把网络接口移入本命名空间
func (ns *NetNS) MoveInterface(ifname string) error {
	link, err := netlink.LinkByName(ifname)
	if err != nil {
		return fmt.Errorf("获取接口 %s 失败: %v", ifname, err)
	}
	if err := netlink.LinkSetNsFd(link, int(ns.handle)); err != nil {
		return fmt.Errorf("移动接口 %s 到 netns %s 失败: %v", ifname, ns.name, err)
	}
	return nil
}

// Close 关闭句柄，命名空间本身保留
func (ns *NetNS) Close() {
	if ns.handle.IsOpen() {
		ns.handle.Close()
	}
	if ns.origin.IsOpen() {
		ns.origin.Close()
	}
}

// Delete 关闭句柄并删除命名空间
func (ns *NetNS) Delete() error {
	ns.Close()
	if err := netns.DeleteNamed(ns.name); err != nil {
		return fmt.Errorf("删除 netns %s 失败: %v", ns.name, err)
	}
	return nil
}

// Name 返回命名空间名称
func (ns *NetNS) Name() string {
	return ns.name
}
