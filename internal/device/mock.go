package device

import (
	"context"
	"sync"

	"mihari/internal/uevent"
)

// MockProber はテスト用のモックProber実装。登録されたパスにだけ
// レコードを返し、それ以外は実デバイスと同様に nil を返す
type MockProber struct {
	mu      sync.Mutex
	records map[string]*Device
	probed  []string
}

// NewMockProber は新しいMockProberを作成する
func NewMockProber() *MockProber {
	return &MockProber{
		records: make(map[string]*Device),
	}
}

// SetRecord は指定パスのプローブ結果を登録する
func (p *MockProber) SetRecord(path string, dev *Device) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[path] = dev
}

// RemoveRecord は指定パスのプローブ結果を取り除く
func (p *MockProber) RemoveRecord(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.records, path)
}

// Probe は登録済みレコードのコピーを返す。呼び出し側から表示名の
// ヒントが与えられた場合は実装と同様にそちらを優先する
func (p *MockProber) Probe(_ context.Context, path, name string) *Device {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.probed = append(p.probed, path)

	dev, exists := p.records[path]
	if !exists {
		return nil
	}

	// 登録したレコードを汚さないようコピーを返す
	clone := *dev
	if name != "" {
		clone.Name = name
	}
	return &clone
}

// ProbedPaths はこれまでにプローブされたパスの一覧を返す
func (p *MockProber) ProbedPaths() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	paths := make([]string, len(p.probed))
	copy(paths, p.probed)
	return paths
}

// MockHotplugClient はテスト用のモックHotplugClient実装。
// 列挙結果を固定で返し、Emit で任意のイベントを注入できる
type MockHotplugClient struct {
	mu       sync.Mutex
	existing []uevent.Device
	events   chan uevent.Device
	closed   bool
}

// NewMockHotplugClient は新しいMockHotplugClientを作成する。
// existing は QueryBySubsystem が返す既存デバイス
func NewMockHotplugClient(existing ...uevent.Device) *MockHotplugClient {
	return &MockHotplugClient{
		existing: existing,
		events:   make(chan uevent.Device, 16),
	}
}

// Events は受信イベントのチャンネルを返す
func (c *MockHotplugClient) Events() <-chan uevent.Device {
	return c.events
}

// QueryBySubsystem は登録済みの既存デバイスを返す
func (c *MockHotplugClient) QueryBySubsystem(_ string) ([]uevent.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	devices := make([]uevent.Device, len(c.existing))
	copy(devices, c.existing)
	return devices, nil
}

// Close はイベントチャンネルをクローズする。多重呼び出しは無害
func (c *MockHotplugClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return nil
}

// Emit はテストからホットプラグイベントを注入する
func (c *MockHotplugClient) Emit(dev uevent.Device) {
	c.events <- dev
}

// Factory はこのモックを返す HotplugClientFactory を返す
func (c *MockHotplugClient) Factory() HotplugClientFactory {
	return func(_ string) (HotplugClient, error) {
		return c, nil
	}
}
