package v4l2

import (
	"fmt"
	"strings"
)

// ケーパビリティフラグ（<linux/videodev2.h> の V4L2_CAP_* に対応）
const (
	// CapVideoCapture はビデオキャプチャに対応していることを表す
	CapVideoCapture = 0x00000001
	// CapVideoOutput はビデオ出力に対応していることを表す
	CapVideoOutput = 0x00000002
	// CapDeviceCaps は device_caps フィールドが有効であることを表す
	CapDeviceCaps = 0x80000000
)

// BufType はバッファタイプを表す（enum v4l2_buf_type に対応）
type BufType uint32

const (
	// BufTypeCapture はキャプチャ用バッファタイプ
	BufTypeCapture BufType = 1
	// BufTypeOutput は出力用バッファタイプ
	BufTypeOutput BufType = 2
)

// Capability は VIDIOC_QUERYCAP の結果を表す
type Capability struct {
	Driver       string // ドライバー名
	Card         string // ハードウェアが報告するカード名
	BusInfo      string // バス情報
	Version      uint32 // ドライバーバージョン
	Capabilities uint32 // 物理デバイス全体のケーパビリティ
	DeviceCaps   uint32 // このデバイスノード固有のケーパビリティ
}

// Effective はこのデバイスノードに対して有効なケーパビリティを返す。
// CapDeviceCaps が立っている場合、Capabilities は物理デバイス全体の値の
// ためノード固有の DeviceCaps を優先する
func (c Capability) Effective() uint32 {
	if c.Capabilities&CapDeviceCaps != 0 {
		return c.DeviceCaps
	}
	return c.Capabilities
}

// FormatDesc は VIDIOC_ENUM_FMT で列挙されたフォーマットを表す
type FormatDesc struct {
	Index       uint32  // 列挙インデックス
	BufType     BufType // 対象バッファタイプ
	Flags       uint32
	Description string // 人間可読なフォーマット名
	PixelFormat uint32 // FourCC コード
}

// FourCC はピクセルフォーマットを "YUYV" のような文字列で返す
func (f FormatDesc) FourCC() string {
	b := []byte{
		byte(f.PixelFormat),
		byte(f.PixelFormat >> 8),
		byte(f.PixelFormat >> 16),
		byte(f.PixelFormat >> 24),
	}
	return strings.TrimRight(string(b), " \x00")
}

// String はログ出力用の表現を返す
func (f FormatDesc) String() string {
	return fmt.Sprintf("%s (%s)", f.FourCC(), f.Description)
}
