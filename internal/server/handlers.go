package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mihari/internal/config"
	"mihari/internal/device"
)

// MihariHandler はHTTPリクエストのハンドラー
type MihariHandler struct {
	config  *config.Config
	monitor *device.Monitor
}

// DeviceInfo はAPIレスポンス用のデバイス情報
type DeviceInfo struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Path    string   `json:"path"`
	Type    string   `json:"type"`
	Formats []string `json:"formats"`
	SysPath string   `json:"syspath,omitempty"`
}

// StatusResponse はシステム状態のレスポンス
type StatusResponse struct {
	Status      string    `json:"status"`
	Monitoring  bool      `json:"monitoring"`
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	DeviceCount int       `json:"device_count"`
	Timestamp   time.Time `json:"timestamp"`
}

// HealthCheck はヘルスチェックエンドポイント
func (h *MihariHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

// GetStatus はシステム状態を返す
func (h *MihariHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status:      "ok",
		Monitoring:  h.monitor.Running(),
		Host:        h.config.Server.Host,
		Port:        h.config.Server.Port,
		DeviceCount: len(h.monitor.Devices()),
		Timestamp:   time.Now(),
	})
}

// GetDevices は登録済みデバイスの一覧を返す
func (h *MihariHandler) GetDevices(c *gin.Context) {
	devices := h.monitor.Devices()

	infos := make([]DeviceInfo, 0, len(devices))
	for _, dev := range devices {
		infos = append(infos, toDeviceInfo(dev))
	}

	c.JSON(http.StatusOK, gin.H{
		"devices": infos,
		"count":   len(infos),
	})
}

// StreamEvents はデバイスの追加・削除をSSEで配信する
func (h *MihariHandler) StreamEvents(c *gin.Context) {
	events, cancel := h.monitor.Subscribe()
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Action), toDeviceInfo(ev.Device))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// toDeviceInfo はデバイスレコードをレスポンス形式に変換する
func toDeviceInfo(dev *device.Device) DeviceInfo {
	formats := make([]string, 0, len(dev.Formats))
	for _, f := range dev.Formats {
		formats = append(formats, f.FourCC())
	}

	return DeviceInfo{
		ID:      dev.ID,
		Name:    dev.Name,
		Path:    dev.Path,
		Type:    string(dev.Type),
		Formats: formats,
		SysPath: dev.SysPath,
	}
}
