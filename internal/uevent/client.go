package uevent

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// netlinkマルチキャストグループ
const (
	kernelGroup = 0x1 // カーネルが直接送出するイベント
	udevGroup   = 0x2 // udevデーモンが処理済みのイベント
)

// デフォルトの参照先ディレクトリ
const (
	defaultSysClassDir  = "/sys/class"
	defaultUdevDataDir  = "/run/udev/data"
	receiveBufferLength = 16 * 1024
)

// Client はホットプラグイベントの購読と既存デバイスの列挙を提供する
type Client struct {
	subsystem string

	fd        int
	closePipe [2]int
	events    chan Device
	done      chan struct{}
	closeOnce sync.Once

	// テストで差し替えるための参照先
	sysClassDir string
	udevDataDir string
}

// NewClient はnetlinkソケットを開いてイベント受信を開始する。
// subsystem が空でない場合、一致しないイベントは配信されない
func NewClient(subsystem string) (*Client, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK,
		unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, fmt.Errorf("netlinkソケットの作成に失敗: %w", err)
	}

	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: kernelGroup | udevGroup,
	}
	if err := unix.Bind(fd, addr); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("netlinkソケットのバインドに失敗: %w", err)
	}

	c := &Client{
		subsystem:   subsystem,
		fd:          fd,
		events:      make(chan Device, 64),
		done:        make(chan struct{}),
		sysClassDir: defaultSysClassDir,
		udevDataDir: defaultUdevDataDir,
	}

	// 終了通知用のパイプ（クローズでイベントポンプを起こす）
	var pipeFds [2]int
	if err := unix.Pipe2(pipeFds[:], unix.O_CLOEXEC); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("終了用パイプの作成に失敗: %w", err)
	}
	c.closePipe = pipeFds

	go c.eventPump()

	return c, nil
}

// Events は受信イベントのチャンネルを返す。Close でクローズされる
func (c *Client) Events() <-chan Device {
	return c.events
}

// Close はイベントポンプを停止してリソースを解放する。多重呼び出しは無害
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		// 書き込み側のクローズでポンプ側のpollがPOLLHUPで復帰する
		_ = unix.Close(c.closePipe[1])
		<-c.done
		_ = unix.Close(c.closePipe[0])
		_ = unix.Close(c.fd)
	})
	return nil
}

// eventPump はnetlinkソケットを監視してイベントをチャンネルに流す。
// 終了パイプがクローズされるまでループする
func (c *Client) eventPump() {
	defer close(c.done)
	defer close(c.events)

	buf := make([]byte, receiveBufferLength)
	fds := []unix.PollFd{
		{Fd: int32(c.closePipe[0]), Events: unix.POLLHUP},
		{Fd: int32(c.fd), Events: unix.POLLIN},
	}

	for {
		_, err := unix.Poll(fds, -1)
		if err != nil {
			if errno, ok := err.(syscall.Errno); ok && errno == unix.EINTR {
				continue
			}
			return
		}

		if fds[0].Revents != 0 {
			return
		}

		if fds[1].Revents == 0 {
			continue
		}

		n, _, err := unix.Recvfrom(c.fd, buf, 0)
		if err != nil {
			if errno, ok := err.(syscall.Errno); ok && (errno == unix.EAGAIN || errno == unix.EINTR) {
				continue
			}
			return
		}

		dev, ok := parseMessage(buf[:n])
		if !ok {
			continue
		}
		if c.subsystem != "" && dev.Subsystem != c.subsystem {
			continue
		}

		select {
		case c.events <- dev:
		default:
			// 消費側が追いつかない場合は取りこぼしをログに残して捨てる
			log.Printf("ホットプラグイベントを破棄します: %s %s", dev.Action, dev.SysPath)
		}
	}
}

// QueryBySubsystem はサブシステム配下の既存デバイスを列挙する。
// 各デバイスのプロパティは sysfs の uevent 属性と udev データベースを
// 統合したもの
func (c *Client) QueryBySubsystem(subsystem string) ([]Device, error) {
	classDir := filepath.Join(c.sysClassDir, subsystem)
	entries, err := os.ReadDir(classDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("サブシステムの列挙に失敗: %s: %w", subsystem, err)
	}

	var devices []Device
	for _, entry := range entries {
		dev, ok := c.deviceFromSysPath(filepath.Join(classDir, entry.Name()), subsystem)
		if !ok {
			continue
		}
		devices = append(devices, dev)
	}

	return devices, nil
}

// deviceFromSysPath はsysfs上の1エントリから記述子を組み立てる
func (c *Client) deviceFromSysPath(linkPath, subsystem string) (Device, bool) {
	sysPath, err := filepath.EvalSymlinks(linkPath)
	if err != nil {
		return Device{}, false
	}

	raw, err := os.ReadFile(filepath.Join(sysPath, "uevent"))
	if err != nil {
		return Device{}, false
	}

	props := make(map[string]string)
	for _, line := range strings.Split(string(raw), "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), "=")
		if !found || key == "" {
			continue
		}
		props[key] = value
	}

	// udevデータベース (c<major>:<minor>) のプロパティを統合する
	if props["MAJOR"] != "" && props["MINOR"] != "" {
		dbPath := filepath.Join(c.udevDataDir, "c"+props["MAJOR"]+":"+props["MINOR"])
		if db, err := os.ReadFile(dbPath); err == nil {
			for _, line := range strings.Split(string(db), "\n") {
				entry, found := strings.CutPrefix(line, "E:")
				if !found {
					continue
				}
				key, value, found := strings.Cut(entry, "=")
				if !found || key == "" {
					continue
				}
				props[key] = value
			}
		}
	}

	return Device{
		SysPath:    sysPath,
		Subsystem:  subsystem,
		Properties: props,
	}, true
}
