package main

import (
	"context"
	"log"

	"mihari/internal/config"
	"mihari/internal/device"
	"mihari/internal/server"
	"mihari/internal/uevent"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// デバイスモニターを作成
	monitor := device.NewMonitor(
		device.MonitorConfig{
			Subsystem:      cfg.Monitor.Subsystem,
			DeviceBases:    cfg.Monitor.DeviceBases,
			MaxDeviceIndex: cfg.Monitor.MaxDeviceIndex,
		},
		device.NewV4L2Prober(),
		func(subsystem string) (device.HotplugClient, error) {
			return uevent.NewClient(subsystem)
		},
	)

	// モニターを開始。初回列挙の完了後に復帰する
	monitor.Start()
	defer monitor.Stop()
	log.Printf("デバイスモニターを開始しました: %d台を検出", len(monitor.Devices()))

	// サーバーを作成
	srv := server.New(cfg, monitor)

	// コンテキストを作成
	ctx := context.Background()

	// サーバーを起動
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
