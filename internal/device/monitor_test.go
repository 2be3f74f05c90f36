package device

import (
	"errors"
	"testing"
	"time"

	"mihari/internal/uevent"
	"mihari/internal/v4l2"
)

var errTest = errors.New("テスト用エラー")

// udevDevice はテスト用のudev記述子を組み立てる
func udevDevice(action, sysPath, devName string, version string, extra map[string]string) uevent.Device {
	props := map[string]string{
		"DEVNAME":   devName,
		"SUBSYSTEM": "video4linux",
	}
	if version != "" {
		props["ID_V4L_VERSION"] = version
	}
	for key, value := range extra {
		props[key] = value
	}
	return uevent.Device{
		Action:     action,
		SysPath:    sysPath,
		Subsystem:  "video4linux",
		Properties: props,
	}
}

// sourceRecord はプローブ結果となるSourceレコードを作る
func sourceRecord(path, name string) *Device {
	return &Device{
		Path:    path,
		Name:    name,
		Type:    TypeSource,
		Formats: []v4l2.FormatDesc{{Description: "YUYV 4:2:2", PixelFormat: 0x56595559}},
	}
}

// waitEvent は購読チャンネルからイベントを1件取り出す
func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("イベントの受信がタイムアウトしました")
		return Event{}
	}
}

func TestMonitorStartPopulatesRegistry(t *testing.T) {
	prober := NewMockProber()
	prober.SetRecord("/dev/video0", sourceRecord("/dev/video0", "WebCam X"))
	prober.SetRecord("/dev/video1", sourceRecord("/dev/video1", "Old Cam"))

	client := NewMockHotplugClient(
		udevDevice("", "/sys/devices/usb1/video4linux/video0", "/dev/video0", "2", nil),
		// プロトコルバージョン1のデバイスは黙って無視される
		udevDevice("", "/sys/devices/usb2/video4linux/video1", "/dev/video1", "1", nil),
	)

	monitor := NewMonitor(MonitorConfig{}, prober, client.Factory())
	monitor.Start()
	defer monitor.Stop()

	// Start は初回列挙の完了後に復帰するため、直後の読み出しで
	// 結果が見えていなければならない
	devices := monitor.Devices()
	if len(devices) != 1 {
		t.Fatalf("Expected 1 device, got %d", len(devices))
	}
	if devices[0].Path != "/dev/video0" {
		t.Errorf("Path = %q, expected %q", devices[0].Path, "/dev/video0")
	}
	if devices[0].SysPath != "/sys/devices/usb1/video4linux/video0" {
		t.Errorf("SysPath が設定されていません: %q", devices[0].SysPath)
	}
}

func TestMonitorStartEmptyWhenClientUnavailable(t *testing.T) {
	prober := NewMockProber()
	factoryErr := func(_ string) (HotplugClient, error) {
		return nil, errTest
	}

	monitor := NewMonitor(MonitorConfig{}, prober, factoryErr)

	// 通知源が作れなくても Start はブロックし続けず空のレジストリで復帰する
	monitor.Start()
	defer monitor.Stop()

	if len(monitor.Devices()) != 0 {
		t.Error("通知源なしでレジストリにデバイスが登録されました")
	}
}

func TestMonitorAddRemove(t *testing.T) {
	prober := NewMockProber()
	prober.SetRecord("/dev/video2", sourceRecord("/dev/video2", "WebCam X"))

	client := NewMockHotplugClient()
	monitor := NewMonitor(MonitorConfig{}, prober, client.Factory())
	monitor.Start()
	defer monitor.Stop()

	events, cancel := monitor.Subscribe()
	defer cancel()

	before := len(monitor.Devices())

	// 追加イベント
	sysPath := "/sys/devices/usb3/video4linux/video2"
	client.Emit(udevDevice("add", sysPath, "/dev/video2", "2", map[string]string{
		"ID_V4L_PRODUCT": "Fancy Capture Device",
	}))

	ev := waitEvent(t, events)
	if ev.Action != EventAdded {
		t.Fatalf("Action = %s, expected %s", ev.Action, EventAdded)
	}
	// udevの表示名ヒントが優先される
	if ev.Device.Name != "Fancy Capture Device" {
		t.Errorf("Name = %q, expected %q", ev.Device.Name, "Fancy Capture Device")
	}

	if len(monitor.Devices()) != before+1 {
		t.Fatalf("追加後のレジストリサイズが不正: %d", len(monitor.Devices()))
	}

	// 同じ sysfs パスの削除イベントで元のサイズに戻る
	client.Emit(udevDevice("remove", sysPath, "/dev/video2", "", nil))

	ev = waitEvent(t, events)
	if ev.Action != EventRemoved {
		t.Fatalf("Action = %s, expected %s", ev.Action, EventRemoved)
	}
	if ev.Device.SysPath != sysPath {
		t.Errorf("削除されたレコードの SysPath が不正: %q", ev.Device.SysPath)
	}

	devices := monitor.Devices()
	if len(devices) != before {
		t.Fatalf("削除後のレジストリサイズが不正: %d", len(devices))
	}
	for _, dev := range devices {
		if dev.SysPath == sysPath {
			t.Error("削除されたレコードがスナップショットに残っています")
		}
	}
}

func TestMonitorRemoveWithoutMatch(t *testing.T) {
	prober := NewMockProber()
	prober.SetRecord("/dev/video0", sourceRecord("/dev/video0", "WebCam X"))

	client := NewMockHotplugClient(
		udevDevice("", "/sys/devices/usb1/video4linux/video0", "/dev/video0", "2", nil),
	)
	monitor := NewMonitor(MonitorConfig{}, prober, client.Factory())
	monitor.Start()
	defer monitor.Stop()

	events, cancel := monitor.Subscribe()
	defer cancel()

	// 一致しない識別子の削除イベントはレジストリを変化させない
	client.Emit(udevDevice("remove", "/sys/devices/unknown/video9", "/dev/video9", "", nil))

	// 後続の追加イベントが処理された時点で、先の削除が無視されたと判断できる
	prober.SetRecord("/dev/video5", sourceRecord("/dev/video5", "Second Cam"))
	client.Emit(udevDevice("add", "/sys/devices/usb5/video4linux/video5", "/dev/video5", "2", nil))
	waitEvent(t, events)

	if len(monitor.Devices()) != 2 {
		t.Fatalf("Expected 2 devices, got %d", len(monitor.Devices()))
	}
}

func TestMonitorIgnoresWrongProtocolVersion(t *testing.T) {
	prober := NewMockProber()
	prober.SetRecord("/dev/video0", sourceRecord("/dev/video0", "V4L1 Cam"))
	prober.SetRecord("/dev/video1", sourceRecord("/dev/video1", "WebCam X"))

	client := NewMockHotplugClient()
	monitor := NewMonitor(MonitorConfig{}, prober, client.Factory())
	monitor.Start()
	defer monitor.Stop()

	events, cancel := monitor.Subscribe()
	defer cancel()

	// バージョン1の追加イベントは公開されない
	client.Emit(udevDevice("add", "/sys/devices/usb1/video4linux/video0", "/dev/video0", "1", nil))
	// バージョン2のイベントが先に届いたイベントより先に公開されることはない
	client.Emit(udevDevice("add", "/sys/devices/usb2/video4linux/video1", "/dev/video1", "2", nil))

	ev := waitEvent(t, events)
	if ev.Device.Path != "/dev/video1" {
		t.Errorf("バージョン1のデバイスが公開されました: %q", ev.Device.Path)
	}
	if len(monitor.Devices()) != 1 {
		t.Fatalf("Expected 1 device, got %d", len(monitor.Devices()))
	}
}

func TestMonitorIgnoresUnknownAction(t *testing.T) {
	prober := NewMockProber()
	prober.SetRecord("/dev/video0", sourceRecord("/dev/video0", "WebCam X"))

	client := NewMockHotplugClient()
	monitor := NewMonitor(MonitorConfig{}, prober, client.Factory())
	monitor.Start()
	defer monitor.Stop()

	events, cancel := monitor.Subscribe()
	defer cancel()

	// 未対応のアクションは無視されるだけでエラーにはならない
	client.Emit(udevDevice("change", "/sys/devices/usb1/video4linux/video0", "/dev/video0", "2", nil))
	client.Emit(udevDevice("add", "/sys/devices/usb1/video4linux/video0", "/dev/video0", "2", nil))

	ev := waitEvent(t, events)
	if ev.Action != EventAdded {
		t.Fatalf("Action = %s, expected %s", ev.Action, EventAdded)
	}
	if len(monitor.Devices()) != 1 {
		t.Fatalf("Expected 1 device, got %d", len(monitor.Devices()))
	}
}

func TestMonitorDoubleStartPanics(t *testing.T) {
	client := NewMockHotplugClient()
	monitor := NewMonitor(MonitorConfig{}, NewMockProber(), client.Factory())
	monitor.Start()
	defer monitor.Stop()

	defer func() {
		if recover() == nil {
			t.Error("開始済みモニターへの Start がパニックしませんでした")
		}
	}()
	monitor.Start()
}

func TestMonitorStopIsIdempotent(t *testing.T) {
	client := NewMockHotplugClient()
	monitor := NewMonitor(MonitorConfig{}, NewMockProber(), client.Factory())

	// 未開始の Stop は何もしない
	monitor.Stop()

	monitor.Start()
	monitor.Stop()
	// 停止済みの Stop も何もしない
	monitor.Stop()
}

func TestMonitorStopThenStart(t *testing.T) {
	prober := NewMockProber()
	prober.SetRecord("/dev/video0", sourceRecord("/dev/video0", "WebCam X"))

	// Start のたびに新しいクライアントを作るファクトリー
	factory := func(_ string) (HotplugClient, error) {
		client := NewMockHotplugClient(
			udevDevice("", "/sys/devices/usb1/video4linux/video0", "/dev/video0", "2", nil),
		)
		return client, nil
	}

	monitor := NewMonitor(MonitorConfig{}, prober, factory)

	monitor.Start()
	if len(monitor.Devices()) != 1 {
		t.Fatalf("Expected 1 device after first start, got %d", len(monitor.Devices()))
	}
	monitor.Stop()

	if monitor.Running() {
		t.Error("停止後も Running が true のままです")
	}
	if len(monitor.Devices()) != 0 {
		t.Error("停止後にレジストリが残っています")
	}

	// 再開すると通知源の再列挙により新規開始と同じ状態になる
	monitor.Start()
	defer monitor.Stop()

	if len(monitor.Devices()) != 1 {
		t.Fatalf("Expected 1 device after restart, got %d", len(monitor.Devices()))
	}
}

func TestMonitorDevicesReturnsSnapshot(t *testing.T) {
	prober := NewMockProber()
	prober.SetRecord("/dev/video0", sourceRecord("/dev/video0", "WebCam X"))

	client := NewMockHotplugClient(
		udevDevice("", "/sys/devices/usb1/video4linux/video0", "/dev/video0", "2", nil),
	)
	monitor := NewMonitor(MonitorConfig{}, prober, client.Factory())
	monitor.Start()
	defer monitor.Stop()

	snapshot := monitor.Devices()
	snapshot[0] = nil

	// スナップショットの書き換えはレジストリに影響しない
	devices := monitor.Devices()
	if len(devices) != 1 || devices[0] == nil {
		t.Error("スナップショットが防御的コピーになっていません")
	}
}
