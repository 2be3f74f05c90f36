// Package server は、デバイスレジストリのHTTP公開を管理します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// レジストリのスナップショット配信とイベントストリーミングを担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - デバイス一覧・システム状態のJSON配信
//   - Server-Sent Events によるデバイス追加・削除の通知
//   - グレースフルシャットダウン
//
// 仕様:
//   - ルーティングとハンドラは gin-gonic/gin を使用
//   - イベントストリームは text/event-stream (SSE)
//   - 複数クライアントの同時購読をサポート
package server
