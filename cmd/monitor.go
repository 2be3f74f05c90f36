// Package main はMihariモニターコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"mihari/internal/config"
	"mihari/internal/device"
	"mihari/internal/server"
	"mihari/internal/uevent"
)

func main() {
	// コマンドラインオプション
	var (
		host = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		list = flag.Bool("list", false, "デバイスを一覧表示して終了")
		help = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Mihari")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  monitor [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
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

	// 一覧表示モード: 静的列挙の結果を表示して終了
	if *list {
		devices := monitor.Enumerate(context.Background())
		for _, dev := range devices {
			fmt.Printf("%s\t%s\t%s\n", dev.Path, dev.Type, dev.Name)
		}
		fmt.Printf("%d台のデバイスを検出しました\n", len(devices))
		os.Exit(0)
	}

	// モニターを開始
	monitor.Start()
	defer monitor.Stop()

	// サーバーを作成
	srv := server.New(cfg, monitor)

	// コンテキストを作成
	ctx := context.Background()

	// サーバーを起動
	log.Printf("Mihari サーバーを起動します: %s", cfg.ServerAddress())
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
