package device

import (
	"context"

	"github.com/google/uuid"

	"mihari/internal/v4l2"
)

// V4L2Prober は実デバイスに対する Prober の実装
type V4L2Prober struct{}

// NewV4L2Prober は新しいV4L2Proberを作成する
func NewV4L2Prober() Prober {
	return &V4L2Prober{}
}

// Probe はデバイスノードを検査してレコードを構築する。
// キャラクタデバイスでないパスはオープンせずに除外し、オープン失敗・
// ケーパビリティなし・フォーマットなし・M2Mデバイスはすべて nil を返す。
// ハンドルはどの経路でも必ずクローズされる
func (p *V4L2Prober) Probe(_ context.Context, path, name string) *Device {
	if !v4l2.IsCharDevice(path) {
		return nil
	}

	dev, err := v4l2.Open(path)
	if err != nil {
		// 権限不足や使用中などは想定内の失敗として黙ってスキップする
		return nil
	}
	defer func() {
		_ = dev.Close()
	}()

	capability, err := dev.QueryCap()
	if err != nil {
		return nil
	}

	typ, bufType, ok := classify(capability.Effective())
	if !ok {
		return nil
	}

	formats, err := dev.EnumFormats(bufType)
	if err != nil || len(formats) == 0 {
		// デバイスは存在するが使えるフォーマットがない
		return nil
	}

	if name == "" {
		name = capability.Card
	}

	return &Device{
		ID:      uuid.New().String(),
		Path:    path,
		Name:    name,
		Formats: formats,
		Type:    typ,
	}
}

// classify はケーパビリティフラグから分類とフォーマット問い合わせに使う
// バッファタイプを決める。キャプチャと出力を兼ねるデバイス (M2M) は
// このレジストリの対象外なので ok=false を返す。出力専用デバイスでは
// フォーマットを出力モードで問い合わせる（ドライバーによっては有効な
// モードでしかフォーマットを報告しないため）
func classify(caps uint32) (typ Type, bufType v4l2.BufType, ok bool) {
	bufType = v4l2.BufTypeCapture

	if caps&v4l2.CapVideoCapture != 0 {
		typ = TypeSource
	}

	if caps&v4l2.CapVideoOutput != 0 {
		if typ == TypeSource {
			return "", 0, false
		}
		typ = TypeSink
		bufType = v4l2.BufTypeOutput
	}

	if typ == "" {
		return "", 0, false
	}

	return typ, bufType, true
}
