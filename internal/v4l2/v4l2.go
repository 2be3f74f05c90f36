// Package v4l2 はVideo4Linux2デバイスへのケーパビリティ問い合わせを提供する
//
// # 責務
// - デバイスノードのオープン・クローズ
// - VIDIOC_QUERYCAP によるケーパビリティ取得
// - VIDIOC_ENUM_FMT によるフォーマット列挙
//
// # 仕様
// - cgo を使わず golang.org/x/sys/unix の ioctl で直接問い合わせる
// - 構造体レイアウトは <linux/videodev2.h> に一致させる
// - ストリーミングやバッファ管理はこのパッケージの範囲外
package v4l2

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl リクエスト番号（_IOR('V', 0, ...) / _IOWR('V', 2, ...) 相当）
const (
	vidiocQueryCap = 0x80685600 // VIDIOC_QUERYCAP
	vidiocEnumFmt  = 0xc0405602 // VIDIOC_ENUM_FMT
)

// rawCapability は struct v4l2_capability と同一レイアウト（104バイト）
type rawCapability struct {
	driver       [16]byte
	card         [32]byte
	busInfo      [32]byte
	version      uint32
	capabilities uint32
	deviceCaps   uint32
	reserved     [3]uint32
}

// rawFmtDesc は struct v4l2_fmtdesc と同一レイアウト（64バイト）
type rawFmtDesc struct {
	index       uint32
	typ         uint32
	flags       uint32
	description [32]byte
	pixelFormat uint32
	reserved    [4]uint32
}

// Device はオープン済みのV4L2デバイスノードを表す
type Device struct {
	fd   int
	path string
}

// IsCharDevice はパスがキャラクタデバイスを指しているかを返す。
// デバイスノードでないパスはオープンせずに除外するために使う
func IsCharDevice(path string) bool {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return false
	}
	return st.Mode&unix.S_IFMT == unix.S_IFCHR
}

// Open はデバイスノードをノンブロッキングでオープンする
func Open(path string) (*Device, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("デバイスのオープンに失敗: %s: %w", path, err)
	}
	return &Device{fd: fd, path: path}, nil
}

// Path はオープン時のデバイスパスを返す
func (d *Device) Path() string {
	return d.path
}

// Close はデバイスをクローズする。多重クローズは無害
func (d *Device) Close() error {
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}

// QueryCap はデバイスのケーパビリティを問い合わせる
func (d *Device) QueryCap() (Capability, error) {
	var raw rawCapability
	if err := ioctl(d.fd, vidiocQueryCap, unsafe.Pointer(&raw)); err != nil {
		return Capability{}, fmt.Errorf("VIDIOC_QUERYCAP に失敗: %s: %w", d.path, err)
	}

	return Capability{
		Driver:       cString(raw.driver[:]),
		Card:         cString(raw.card[:]),
		BusInfo:      cString(raw.busInfo[:]),
		Version:      raw.version,
		Capabilities: raw.capabilities,
		DeviceCaps:   raw.deviceCaps,
	}, nil
}

// EnumFormats は指定バッファタイプで対応しているフォーマットを列挙する。
// EINVAL は列挙の終端を意味するためエラーにしない
func (d *Device) EnumFormats(bufType BufType) ([]FormatDesc, error) {
	var formats []FormatDesc

	for index := uint32(0); ; index++ {
		raw := rawFmtDesc{index: index, typ: uint32(bufType)}
		if err := ioctl(d.fd, vidiocEnumFmt, unsafe.Pointer(&raw)); err != nil {
			if err == unix.EINVAL || err == unix.ENOTTY {
				break
			}
			return formats, fmt.Errorf("VIDIOC_ENUM_FMT に失敗: %s: %w", d.path, err)
		}

		formats = append(formats, FormatDesc{
			Index:       raw.index,
			BufType:     bufType,
			Flags:       raw.flags,
			Description: cString(raw.description[:]),
			PixelFormat: raw.pixelFormat,
		})
	}

	return formats, nil
}

// ioctl はエラーを errno のまま返す薄いラッパー
func ioctl(fd int, req uint32, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}

// cString はNUL終端のバイト列をGoの文字列に変換する
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
