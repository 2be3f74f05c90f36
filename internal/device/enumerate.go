package device

import (
	"context"
	"fmt"
)

// 静的列挙のデフォルト値
const (
	// DefaultMaxDeviceIndex は走査するデバイス番号の上限（0〜63）
	DefaultMaxDeviceIndex = 64
)

// DefaultDeviceBases は走査するデバイスノードの命名規則
var DefaultDeviceBases = []string{"/dev/video", "/dev/v4l2/video"}

// Enumerator は固定パターンの走査による一括列挙を提供する。
// ホットプラグ通知が使えない環境やオンデマンドのスナップショット取得に使う
type Enumerator struct {
	prober   Prober
	bases    []string
	maxIndex int
}

// NewEnumerator は新しいEnumeratorを作成する。bases が nil・maxIndex が
// 0以下の場合はデフォルト値を使う
func NewEnumerator(prober Prober, bases []string, maxIndex int) *Enumerator {
	if len(bases) == 0 {
		bases = DefaultDeviceBases
	}
	if maxIndex <= 0 {
		maxIndex = DefaultMaxDeviceIndex
	}
	return &Enumerator{
		prober:   prober,
		bases:    bases,
		maxIndex: maxIndex,
	}
}

// Enumerate は候補ノードを順にプローブして使用可能なデバイスの
// スナップショットを返す。プローブの失敗は黙ってスキップするため、
// この関数自体は失敗しない。結果の順序に意味はない
func (e *Enumerator) Enumerate(ctx context.Context) []*Device {
	var devices []*Device

	for n := 0; n < e.maxIndex; n++ {
		for _, base := range e.bases {
			select {
			case <-ctx.Done():
				return devices
			default:
			}

			path := fmt.Sprintf("%s%d", base, n)
			if dev := e.prober.Probe(ctx, path, ""); dev != nil {
				devices = append(devices, dev)
			}
		}
	}

	return devices
}
