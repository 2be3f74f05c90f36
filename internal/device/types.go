package device

import (
	"context"

	"mihari/internal/uevent"
	"mihari/internal/v4l2"
)

// Type はデバイスの分類を表す。SourceとSinkは排他で、構築時に一度だけ
// 決まり以後変化しない
type Type string

const (
	// TypeSource はキャプチャデバイス（カメラ等）を表す
	TypeSource Type = "source"
	// TypeSink は出力デバイスを表す
	TypeSink Type = "sink"
)

// Device は検出された1台のデバイスを表す。構築後は不変として扱う
type Device struct {
	ID      string            // 一意識別子
	Path    string            // デバイスノードのパス（例: /dev/video0）
	Name    string            // 表示名（udevのメタデータ、なければカード名）
	Formats []v4l2.FormatDesc // 対応フォーマット（空のレコードは公開されない）
	Type    Type              // 分類
	SysPath string            // sysfs パス。ホットプラグ検出時のみ設定され、
	// 削除イベントとの照合キーになる。静的列挙では空
}

// Prober はデバイスノードを検査して使用可否と分類を判定する
type Prober interface {
	// Probe はデバイスノードをプローブする。name はudev由来の表示名の
	// ヒントで、空の場合はハードウェアが報告する名前を使う。
	// 使用できないノードでは nil を返す（エラーにしない）
	Probe(ctx context.Context, path, name string) *Device
}

// HotplugClient はホットプラグ通知源を抽象化する
type HotplugClient interface {
	// Events は受信イベントのチャンネルを返す
	Events() <-chan uevent.Device

	// QueryBySubsystem はサブシステム配下の既存デバイスを列挙する
	QueryBySubsystem(subsystem string) ([]uevent.Device, error)

	// Close は通知の購読を終了する
	Close() error
}

// HotplugClientFactory はモニター開始時にクライアントを作成する
type HotplugClientFactory func(subsystem string) (HotplugClient, error)

// EventAction はレジストリ更新イベントの種別を表す
type EventAction string

const (
	// EventAdded はデバイスの追加を表す
	EventAdded EventAction = "added"
	// EventRemoved はデバイスの削除を表す
	EventRemoved EventAction = "removed"
)

// Event はレジストリの増分更新を購読者へ伝える
type Event struct {
	Action EventAction
	Device *Device
}
