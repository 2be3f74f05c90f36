package device

import (
	"context"
	"log"
	"sync"

	"mihari/internal/uevent"
)

// ホットプラグ連携の定数
const (
	// DefaultSubsystem は監視対象のudevサブシステム
	DefaultSubsystem = "video4linux"

	// v4l2ProtocolVersion は受け入れるV4Lプロトコルのバージョン。
	// これ以外 (V4L1等) のデバイスは黙って無視する
	v4l2ProtocolVersion = 2

	taskQueueLength       = 16
	subscriberQueueLength = 16
)

// udevプロパティのキー
const (
	propV4LVersion = "ID_V4L_VERSION"
	propV4LProduct = "ID_V4L_PRODUCT"
	propModelEnc   = "ID_MODEL_ENC"
	propModel      = "ID_MODEL"
)

// task はバックグラウンドループに投函する処理。true を返すとループを
// 終了させる
type task func() (quit bool)

// MonitorConfig はモニターの動作設定
type MonitorConfig struct {
	Subsystem      string   // 監視するudevサブシステム
	DeviceBases    []string // 静的列挙で走査する命名規則
	MaxDeviceIndex int      // 静的列挙で走査する番号の上限
}

// Monitor はデバイスレジストリをホットプラグイベントに追従させる。
// レジストリの更新はすべて専用のバックグラウンドゴルーチン上で
// 直列化され、外部からはスナップショット取得とイベント購読で参照する
type Monitor struct {
	cfg       MonitorConfig
	prober    Prober
	newClient HotplugClientFactory

	mu          sync.Mutex
	startedCond *sync.Cond
	started     bool
	tasks       chan task
	done        chan struct{}
	devices     []*Device

	subMu       sync.Mutex
	subscribers map[int]chan Event
	nextSubID   int
}

// NewMonitor は新しいMonitorを作成する。作成しただけでは監視は
// 始まらない（Start を呼ぶ）
func NewMonitor(cfg MonitorConfig, prober Prober, newClient HotplugClientFactory) *Monitor {
	if cfg.Subsystem == "" {
		cfg.Subsystem = DefaultSubsystem
	}

	m := &Monitor{
		cfg:         cfg,
		prober:      prober,
		newClient:   newClient,
		subscribers: make(map[int]chan Event),
	}
	m.startedCond = sync.NewCond(&m.mu)
	return m
}

// Start はバックグラウンドの監視を開始し、初回列挙が完了するまで
// 呼び出し側をブロックする。ホットプラグ通知が使えない場合も空の
// レジストリで開始扱いとなり必ず復帰する。
// 開始済みのモニターに対する呼び出しは契約違反としてパニックする
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tasks != nil {
		panic("device: Monitor.Start が開始済みのモニターに対して呼び出されました")
	}

	tasks := make(chan task, taskQueueLength)
	done := make(chan struct{})
	m.tasks = tasks
	m.done = done
	m.started = false

	go m.run(tasks, done)

	for !m.started {
		m.startedCond.Wait()
	}
}

// Stop は監視を停止してレジストリを破棄する。未開始の場合は何もしない。
// ループの終了は必ずループ自身のゴルーチン上で行われるため、停止は
// 終了タスクの投函で依頼し、ゴルーチンの終了を待ってから復帰する
func (m *Monitor) Stop() {
	m.mu.Lock()
	tasks := m.tasks
	done := m.done
	// 先にハンドルを切り離しておくことで、停止後のStartが
	// まっさらな状態から始められる
	m.tasks = nil
	m.done = nil
	m.mu.Unlock()

	if tasks == nil || done == nil {
		return
	}

	tasks <- func() bool { return true }
	<-done

	m.mu.Lock()
	m.started = false
	m.devices = nil
	m.mu.Unlock()
}

// Devices は現在のレジストリのスナップショットを返す
func (m *Monitor) Devices() []*Device {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := make([]*Device, len(m.devices))
	copy(snapshot, m.devices)
	return snapshot
}

// Running は監視が動作中かを返す
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks != nil
}

// Enumerate は静的走査によるスナップショットを返す。監視の状態とは
// 独立に、その場で候補ノードをプローブする
func (m *Monitor) Enumerate(ctx context.Context) []*Device {
	return NewEnumerator(m.prober, m.cfg.DeviceBases, m.cfg.MaxDeviceIndex).Enumerate(ctx)
}

// Subscribe はレジストリ更新イベントの購読を開始する。返される解除関数は
// 多重呼び出ししても安全
func (m *Monitor) Subscribe() (<-chan Event, func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSubID
	m.nextSubID++
	ch := make(chan Event, subscriberQueueLength)
	m.subscribers[id] = ch

	cancel := func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if sub, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// run はバックグラウンドゴルーチンの本体。クライアントを作成し、
// 既存デバイスを列挙してから開始を通知し、イベントループに入る
func (m *Monitor) run(tasks <-chan task, done chan<- struct{}) {
	defer close(done)

	client, err := m.newClient(m.cfg.Subsystem)
	if err != nil {
		// 通知源なしでも開始扱いにして呼び出し側のブロックを解く
		log.Printf("ホットプラグクライアントの作成に失敗しました: %v", err)
		m.signalStarted()
		return
	}
	defer func() {
		_ = client.Close()
	}()

	existing, err := client.QueryBySubsystem(m.cfg.Subsystem)
	if err != nil {
		log.Printf("既存デバイスの列挙に失敗しました: %v", err)
	}
	for _, ud := range existing {
		if ud.PropertyInt(propV4LVersion) != v4l2ProtocolVersion {
			continue
		}
		if dev := m.deviceFromUdev(ud); dev != nil {
			m.addDevice(dev)
		}
	}

	m.signalStarted()

	events := client.Events()
	for {
		select {
		case t := <-tasks:
			if t != nil && t() {
				return
			}
		case ud, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			m.handleEvent(ud)
		}
	}
}

// signalStarted は初回列挙の完了を Start で待っている呼び出し側に通知する
func (m *Monitor) signalStarted() {
	m.mu.Lock()
	m.started = true
	m.startedCond.Broadcast()
	m.mu.Unlock()
}

// handleEvent はホットプラグイベント1件をレジストリに反映する。
// バックグラウンドループからのみ呼ばれる
func (m *Monitor) handleEvent(ud uevent.Device) {
	switch ud.Action {
	case "add":
		// V4L2でないデバイスは無視する
		if ud.PropertyInt(propV4LVersion) != v4l2ProtocolVersion {
			return
		}
		if dev := m.deviceFromUdev(ud); dev != nil {
			m.addDevice(dev)
		}
	case "remove":
		m.removeBySysPath(ud.SysPath)
	default:
		log.Printf("未対応のアクションを無視します: %s (%s)", ud.Action, ud.SysPath)
	}
}

// deviceFromUdev はudevの記述子からプローブ経由でレコードを構築する。
// 表示名はudevメタデータの3つのキーを順に参照し、いずれもなければ
// プローブがハードウェア報告名へフォールバックする
func (m *Monitor) deviceFromUdev(ud uevent.Device) *Device {
	path := ud.DevNode()
	if path == "" {
		return nil
	}

	name := ud.Property(propV4LProduct)
	if name == "" {
		name = ud.Property(propModelEnc)
	}
	if name == "" {
		name = ud.Property(propModel)
	}

	dev := m.prober.Probe(context.Background(), path, name)
	if dev == nil {
		return nil
	}

	dev.SysPath = ud.SysPath
	return dev
}

// addDevice はレコードをレジストリに追加して購読者へ通知する
func (m *Monitor) addDevice(dev *Device) {
	m.mu.Lock()
	m.devices = append(m.devices, dev)
	m.mu.Unlock()

	m.publish(Event{Action: EventAdded, Device: dev})
}

// removeBySysPath は sysfs パスが一致するレコードを取り除いて購読者へ
// 通知する。一致がなければ何もしない。通知はロックを手放してから行う
// （購読者の処理中に再入してもデッドロックしないため）
func (m *Monitor) removeBySysPath(sysPath string) {
	var removed *Device

	m.mu.Lock()
	for i, dev := range m.devices {
		if dev.SysPath != "" && dev.SysPath == sysPath {
			removed = dev
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if removed != nil {
		m.publish(Event{Action: EventRemoved, Device: removed})
	}
}

// publish は全購読者へイベントを配る。詰まっている購読者へは配らず
// 取りこぼしをログに残す
func (m *Monitor) publish(ev Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for _, ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
			log.Printf("購読者が追いつかないためイベントを破棄します: %s %s", ev.Action, ev.Device.Path)
		}
	}
}
