// Package device はV4L2デバイスの検出とライフサイクル管理を担う
//
// # 責務
// - デバイスノードのプローブと Source / Sink への分類
// - 固定パターンによる静的列挙 (/dev/video0..63 等)
// - ホットプラグイベントによるレジストリの増分更新
// - モニターの開始・停止ライフサイクル管理
// - 下流のメディア要素を生成するファクトリー
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - 利用可能なキャプチャ・出力デバイスを列挙したい
// - プロセス稼働中のデバイスの抜き差しに追従したい
// - 検出済みデバイスから下流要素のハンドルを作りたい
//
// # 仕様
// - プローブはケーパビリティとフォーマットを問い合わせて分類する
// - キャプチャと出力を兼ねるデバイス (M2M) はレジストリに載せない
// - レジストリの更新は専用ゴルーチン上で直列化される
// - 削除イベントは sysfs パスをキーとして既存レコードと照合する
// - Start はバックグラウンド側の初回列挙完了までブロックする
// - フォーマットネゴシエーションやストリーミングは範囲外
package device
